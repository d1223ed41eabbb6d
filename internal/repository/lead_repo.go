package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

type LeadRepository struct {
	db *pgxpool.Pool
}

func NewLeadRepository(db *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{db: db}
}

// FindByEmail returns the lead for (site, email), or nil when absent.
func (r *LeadRepository) FindByEmail(ctx context.Context, siteID, email string) (*model.Lead, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("find_by_email", "leads", time.Since(start)) }()

	query := `
        SELECT id, site_id, email, name, status, assigned_to, created_at, updated_at
        FROM leads
        WHERE site_id = $1 AND email = $2
    `
	var l model.Lead
	err := r.db.QueryRow(ctx, query, siteID, email).Scan(
		&l.ID, &l.SiteID, &l.Email, &l.Name, &l.Status, &l.AssignedTo, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new lead.
func (r *LeadRepository) Create(ctx context.Context, l *model.Lead) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("create", "leads", time.Since(start)) }()

	query := `
        INSERT INTO leads (id, site_id, email, name, status, assigned_to, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
    `
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query, l.ID, l.SiteID, l.Email, l.Name, l.Status, l.AssignedTo)
	return err
}

// UpdateName replaces the display name.
func (r *LeadRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	query := `UPDATE leads SET name = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, name, id)
	return err
}

// UpdateStatus sets the lifecycle status. Callers are responsible for the
// forward-only rule.
func (r *LeadRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.LeadStatus) error {
	query := `UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, status, id)
	return err
}

// Assign attaches the lead to a team member.
func (r *LeadRepository) Assign(ctx context.Context, id, memberID uuid.UUID) error {
	query := `UPDATE leads SET assigned_to = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, memberID, id)
	return err
}
