package model

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus is the lead lifecycle. Transitions only move forward.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
)

var leadStatusRank = map[LeadStatus]int{
	LeadStatusNew:       0,
	LeadStatusContacted: 1,
	LeadStatusQualified: 2,
	LeadStatusConverted: 3,
}

// Rank returns the position of the status in the progression, -1 for
// unknown values.
func (s LeadStatus) Rank() int {
	if r, ok := leadStatusRank[s]; ok {
		return r
	}
	return -1
}

// Lead is a CRM contact keyed by (email, site).
type Lead struct {
	ID         uuid.UUID
	SiteID     string
	Email      string
	Name       string
	Status     LeadStatus
	AssignedTo *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
