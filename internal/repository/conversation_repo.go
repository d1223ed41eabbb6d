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

type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindActive returns the lead's most recent conversation on the channel
// with activity at or after the cutoff, or nil. Conversations that went
// quiet before the cutoff are left alone; the caller starts a new one.
func (r *ConversationRepository) FindActive(ctx context.Context, leadID uuid.UUID, channel string, activeSince time.Time) (*model.Conversation, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("find_active", "conversations", time.Since(start)) }()

	query := `
        SELECT id, lead_id, site_id, channel, title, last_message_at, created_at
        FROM conversations
        WHERE lead_id = $1 AND channel = $2 AND last_message_at >= $3
        ORDER BY last_message_at DESC
        LIMIT 1
    `
	var c model.Conversation
	err := r.db.QueryRow(ctx, query, leadID, channel, activeSince).Scan(
		&c.ID, &c.LeadID, &c.SiteID, &c.Channel, &c.Title, &c.LastMessageAt, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("create", "conversations", time.Since(start)) }()

	query := `
        INSERT INTO conversations (id, lead_id, site_id, channel, title, last_message_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
    `
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query, c.ID, c.LeadID, c.SiteID, c.Channel, c.Title, c.LastMessageAt)
	return err
}

// SetTitle replaces the conversation title.
func (r *ConversationRepository) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	query := `UPDATE conversations SET title = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, title, id)
	return err
}

// Touch advances last_message_at, never moving it backwards.
func (r *ConversationRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE conversations SET last_message_at = GREATEST(last_message_at, $1) WHERE id = $2`
	_, err := r.db.Exec(ctx, query, at, id)
	return err
}
