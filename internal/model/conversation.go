package model

import (
	"time"

	"github.com/google/uuid"
)

const ChannelEmail = "email"

// Conversation is one email thread with a lead. At most one conversation
// per lead is active for the email channel within the lookback window;
// older inactivity starts a new one.
type Conversation struct {
	ID            uuid.UUID
	LeadID        uuid.UUID
	SiteID        string
	Channel       string
	Title         string
	LastMessageAt time.Time
	CreatedAt     time.Time
}
