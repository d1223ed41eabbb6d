package model

import (
	"time"

	"github.com/google/uuid"
)

// TeamMember is an internal operator account. Leads whose traffic comes
// from a member's mailbox get assigned to that member.
type TeamMember struct {
	ID           uuid.UUID
	SiteID       string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}
