package model

import "time"

// SyncStatus is the per-email registry outcome.
type SyncStatus string

const (
	SyncStatusProcessed SyncStatus = "processed"
	SyncStatusError     SyncStatus = "error"
	SyncStatusSkipped   SyncStatus = "skipped"
)

// SyncRegistryEntry records one processed raw email per site. It makes
// repeated batch runs cheap; it is NOT the duplicate guard of record,
// because registry keys can be ambiguous across schema versions. The
// message-level cascade is the ultimate check.
type SyncRegistryEntry struct {
	ID        int64
	SiteID    string
	EmailKey  string
	Status    SyncStatus
	Detail    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}
