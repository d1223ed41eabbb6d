package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author side of a message.
type MessageRole string

const (
	MessageRoleSystem     MessageRole = "system"
	MessageRoleTeamMember MessageRole = "team_member"
	MessageRoleLead       MessageRole = "lead"
)

// DedupVersion tags newly written messages so future correlation lookups
// can branch on the metadata schema they were written under.
const DedupVersion = 2

// Message is one entry in a conversation. For a given (conversation,
// correlation id) pair at most one message may exist; that contract is
// what the whole duplicate cascade protects.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           MessageRole
	Content        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// CorrelationIDs collects the correlation id from every metadata location
// the schema has historically used. The field moved twice; messages
// written by older code keep their old shape, so a single lookup path
// would silently miss true duplicates.
func (m *Message) CorrelationIDs() []string {
	var ids []string
	add := func(v any) {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}

	if m.Metadata == nil {
		return nil
	}

	// current: top-level email_id
	add(m.Metadata["email_id"])

	// current: nested under delivery details
	if delivery, ok := m.Metadata["delivery"].(map[string]any); ok {
		add(delivery["email_id"])
	}

	// legacy shapes kept for messages written before the delivery block
	if email, ok := m.Metadata["email"].(map[string]any); ok {
		add(email["message_id"])
	}
	if syncMeta, ok := m.Metadata["sync"].(map[string]any); ok {
		add(syncMeta["email_id"])
	}

	return ids
}

// DeliveryTo returns the recorded recipient, falling back through the
// historical locations.
func (m *Message) DeliveryTo() string {
	if m.Metadata == nil {
		return ""
	}
	if delivery, ok := m.Metadata["delivery"].(map[string]any); ok {
		if s, ok := delivery["to"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := m.Metadata["to"].(string); ok {
		return s
	}
	return ""
}

// DeliverySubject returns the recorded subject.
func (m *Message) DeliverySubject() string {
	if m.Metadata == nil {
		return ""
	}
	if delivery, ok := m.Metadata["delivery"].(map[string]any); ok {
		if s, ok := delivery["subject"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := m.Metadata["subject"].(string); ok {
		return s
	}
	return ""
}

// SentAt returns the recorded send timestamp, falling back to the row
// creation time when the metadata carries none or an unparseable value.
func (m *Message) SentAt() time.Time {
	if m.Metadata != nil {
		if delivery, ok := m.Metadata["delivery"].(map[string]any); ok {
			if s, ok := delivery["sent_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					return t
				}
			}
		}
	}
	return m.CreatedAt
}

// NormalizedSubject returns the pre-normalized subject recorded at write
// time, "" when absent (older messages).
func (m *Message) NormalizedSubject() string {
	if m.Metadata == nil {
		return ""
	}
	if s, ok := m.Metadata["normalized_subject"].(string); ok {
		return s
	}
	return ""
}

// NormalizedRecipient returns the pre-normalized recipient recorded at
// write time, "" when absent.
func (m *Message) NormalizedRecipient() string {
	if m.Metadata == nil {
		return ""
	}
	if s, ok := m.Metadata["normalized_to"].(string); ok {
		return s
	}
	return ""
}
