package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListByConversation returns all messages of a conversation, oldest first.
// The duplicate cascade works over this set in memory; conversations stay
// small enough (bounded by the 30-day window) that one read is cheaper
// than five shaped queries.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("list_by_conversation", "messages", time.Since(start)) }()

	query := `
        SELECT id, conversation_id, role, content, metadata, created_at
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode message metadata %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// Create inserts a message.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("create", "messages", time.Since(start)) }()

	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode message metadata: %w", err)
	}

	query := `
        INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err = r.db.Exec(ctx, query, m.ID, m.ConversationID, m.Role, m.Content, metadata, m.CreatedAt)
	return err
}
