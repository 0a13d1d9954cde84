package model

import "time"

// Item is one tracked storefront product (a wishlist catalog entry).
// AppID is the storefront-assigned identifier and the primary key; the
// display name is captured on first sight and kept as-is afterwards.
type Item struct {
	AppID     int64     `json:"app_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncRunStatus represents the state of a recorded sync cycle.
type SyncRunStatus string

const (
	SyncRunRunning  SyncRunStatus = "running"
	SyncRunComplete SyncRunStatus = "complete"
	SyncRunFailed   SyncRunStatus = "failed"
)

// SyncKind distinguishes the two fetch cycles.
type SyncKind string

const (
	SyncKindWishlist SyncKind = "wishlist"
	SyncKindHistory  SyncKind = "history"
)

// SyncRun is one audit-log row for a sync cycle.
type SyncRun struct {
	ID          string        `json:"id"`
	Kind        SyncKind      `json:"kind"`
	Status      SyncRunStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	ItemsTotal  int           `json:"items_total"`
	ItemsOK     int           `json:"items_ok"`
	Records     int           `json:"records"`
	Error       string        `json:"error,omitempty"`
}
