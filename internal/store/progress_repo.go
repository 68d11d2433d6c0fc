package store

import (
	"context"
	"time"
)

// Status mirrors the scraping_progress status column.
type Status string

// Stage statuses persisted in scraping_progress.status.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProgressRecord models one pipeline stage's row in scraping_progress.
type ProgressRecord struct {
	// TaskName identifies the stage (streets, listings, details, media).
	TaskName string
	// Status is pending/in_progress/completed/failed.
	Status Status
	// ItemsTotal is the known work size, zero when not yet counted.
	ItemsTotal int
	// ItemsDone counts finished work items.
	ItemsDone int
	// StartedAt captures when the stage first entered in_progress.
	StartedAt time.Time
	// UpdatedAt moves on every write so stalls are visible.
	UpdatedAt time.Time
	// CompletedAt is nil until the stage completes.
	CompletedAt *time.Time
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// ProgressRepository persists incremental stage progress.
type ProgressRepository interface {
	// GetProgress loads one stage's record or returns ErrNotFound.
	GetProgress(ctx context.Context, taskName string) (ProgressRecord, error)
	// ListProgress returns every stage record ordered by task name.
	ListProgress(ctx context.Context) ([]ProgressRecord, error)
	// StartProgress upserts the stage into in_progress with the given total.
	StartProgress(ctx context.Context, taskName string, itemsTotal int, at time.Time) error
	// AdvanceProgress updates the done counter and touches updated_at.
	AdvanceProgress(ctx context.Context, taskName string, itemsDone int, at time.Time) error
	// CompleteProgress marks the stage completed.
	CompleteProgress(ctx context.Context, taskName string, at time.Time) error
	// FailProgress marks the stage failed with a reason.
	FailProgress(ctx context.Context, taskName string, message string, at time.Time) error
	// ResetProgress deletes every stage record so a run starts clean.
	ResetProgress(ctx context.Context) error
}
