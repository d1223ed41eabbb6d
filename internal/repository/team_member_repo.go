package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
)

type TeamMemberRepository struct {
	db *pgxpool.Pool
}

func NewTeamMemberRepository(db *pgxpool.Pool) *TeamMemberRepository {
	return &TeamMemberRepository{db: db}
}

// FindByEmail returns the team member with the given address, or nil.
func (r *TeamMemberRepository) FindByEmail(ctx context.Context, siteID, email string) (*model.TeamMember, error) {
	query := `
        SELECT id, site_id, email, name, password_hash, created_at
        FROM team_members
        WHERE site_id = $1 AND email = $2
    `
	var m model.TeamMember
	err := r.db.QueryRow(ctx, query, siteID, email).Scan(
		&m.ID, &m.SiteID, &m.Email, &m.Name, &m.PasswordHash, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
