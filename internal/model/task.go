package model

import (
	"time"

	"github.com/google/uuid"
)

// Task kinds used by the email pipeline.
const (
	TaskKindProspecting = "prospecting"
	TaskKindFollowUp    = "follow_up"
)

// Task stages along the lead journey, in order.
const (
	TaskStageProspecting   = "prospecting"
	TaskStageAwareness     = "awareness"
	TaskStageConsideration = "consideration"
	TaskStageDecision      = "decision"
)

var taskStageRank = map[string]int{
	TaskStageProspecting:   0,
	TaskStageAwareness:     1,
	TaskStageConsideration: 2,
	TaskStageDecision:      3,
}

// StageRank returns the position of a stage in the journey, -1 for
// unknown stages.
func StageRank(stage string) int {
	if r, ok := taskStageRank[stage]; ok {
		return r
	}
	return -1
}

// Task statuses.
const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

// Task is a pipeline/follow-up item attached to a lead.
type Task struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	SiteID      string
	Kind        string
	Stage       string
	Status      string
	Title       string
	DueAt       *time.Time
	CreatedAt   time.Time
	CompletedAt *time.Time
}
