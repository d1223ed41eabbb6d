package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailsync/internal/model"
)

// Store interfaces consumed by the engine. The pgx repositories satisfy
// them; tests use in-memory fakes. Find methods return (nil, nil) when
// the entity does not exist.

type LeadStore interface {
	FindByEmail(ctx context.Context, siteID, email string) (*model.Lead, error)
	Create(ctx context.Context, l *model.Lead) error
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.LeadStatus) error
	Assign(ctx context.Context, id, memberID uuid.UUID) error
}

type ConversationStore interface {
	FindActive(ctx context.Context, leadID uuid.UUID, channel string, activeSince time.Time) (*model.Conversation, error)
	Create(ctx context.Context, c *model.Conversation) error
	SetTitle(ctx context.Context, id uuid.UUID, title string) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MessageStore interface {
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error)
	Create(ctx context.Context, m *model.Message) error
}

type RegistryStore interface {
	Find(ctx context.Context, siteID, emailKey string) (*model.SyncRegistryEntry, error)
	Upsert(ctx context.Context, e *model.SyncRegistryEntry) error
}

type TaskStore interface {
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]model.Task, error)
	Create(ctx context.Context, t *model.Task) error
	Complete(ctx context.Context, id uuid.UUID) error
}

type TeamMemberStore interface {
	FindByEmail(ctx context.Context, siteID, email string) (*model.TeamMember, error)
}

// EventSink receives domain events for async publication. The outbox
// repository satisfies it.
type EventSink interface {
	Enqueue(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error
}
