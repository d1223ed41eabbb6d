package model

// SyncRequest is the batch trigger contract.
type SyncRequest struct {
	SiteID    string `json:"site_id" binding:"required"`
	Limit     int    `json:"limit"`
	SinceDate string `json:"since_date"` // ISO-8601; empty means last 24h
}

// EmailOutcome is the per-email result reported in the batch response.
type EmailOutcome struct {
	EmailKey  string `json:"emailKey"`
	Subject   string `json:"subject,omitempty"`
	To        string `json:"to,omitempty"`
	Status    string `json:"status"` // processed, duplicate, skipped, already_processed, error
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	LeadID    string `json:"leadId,omitempty"`
}

// Per-email outcome statuses.
const (
	OutcomeProcessed        = "processed"
	OutcomeDuplicate        = "duplicate"
	OutcomeSkipped          = "skipped"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeError            = "error"
)

// BatchSummary is the batch response. Individual email failures keep
// Success true; false is reserved for configuration/transport failures
// that abort the whole invocation.
type BatchSummary struct {
	Success                   bool           `json:"success"`
	Error                     string         `json:"error,omitempty"`
	ErrorCode                 string         `json:"errorCode,omitempty"`
	EmailCount                int            `json:"emailCount"`
	NewEmailsCount            int            `json:"newEmailsCount"`
	AlreadyProcessedCount     int            `json:"alreadyProcessedCount"`
	ProcessedCount            int            `json:"processedCount"`
	SkippedInternalCount      int            `json:"skippedInternalCount"`
	NewLeadsCount             int            `json:"newLeadsCount"`
	StatusUpdatedCount        int            `json:"statusUpdatedCount"`
	NamesUpdatedCount         int            `json:"namesUpdatedCount"`
	AssignedToTeamMemberCount int            `json:"assignedToTeamMemberCount"`
	TasksCreatedCount         int            `json:"tasksCreatedCount"`
	ThreadsDetectedCount      int            `json:"threadsDetectedCount"`
	ThreadEmailsSyncedCount   int            `json:"threadEmailsSyncedCount"`
	MessagesNotCreatedCount   int            `json:"messagesNotCreatedCount"`
	Results                   []EmailOutcome `json:"results"`
}
