package domain

import (
	"time"

	filesdomain "fileflow-backend/internal/files/domain"
)

const (
	// AttachmentBatchSize bounds concurrent classify/download/upload work.
	AttachmentBatchSize = 3
	// ReconcileBatchSize bounds concurrent message existence probes.
	ReconcileBatchSize = 5
	ReconcileInterval  = 24 * time.Hour

	// FallbackMaxMessages caps the query-based fetch used without a usable cursor.
	FallbackMaxMessages = 100
	// MaxMessageFetchAttempts is how many runs in a row may fail to fetch one message
	// before it is given up.
	MaxMessageFetchAttempts = 5

	MiningQuery       = "is:unread newer_than:3d"
	MiningMaxMessages = 20
)

type Options struct {
	// Foreground runs return the notification text instead of pushing it.
	Foreground bool
}

type Result struct {
	Files    []*filesdomain.ProcessedFile `json:"files"`
	NewFiles []*filesdomain.ProcessedFile `json:"new_files"`
	Removed  int                          `json:"removed"`
	Cursor   string                       `json:"cursor,omitempty"`
	// QueryFallback is set when the run fetched by date window instead of by cursor.
	QueryFallback bool `json:"query_fallback"`
	// Deferred counts messages that could not be fetched and are retried next run.
	Deferred     int       `json:"deferred"`
	NewTodos     int       `json:"new_todos"`
	Notification string    `json:"notification,omitempty"`
	SyncedAt     time.Time `json:"synced_at"`
}
