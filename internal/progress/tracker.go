package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

// Tracker persists per-stage progress through a store.ProgressRepository.
// Writes are synchronous because resume decisions depend on them; high-volume
// item telemetry goes through the Hub instead.
type Tracker struct {
	repo   store.ProgressRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker constructs a Tracker over the given repository.
func NewTracker(repo store.ProgressRepository, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ShouldRun reports whether a stage needs to execute. With resume enabled,
// completed stages are skipped; pending, in_progress (an interrupted run),
// failed, and unknown stages all run again. Without resume every stage runs.
func (t *Tracker) ShouldRun(ctx context.Context, stage Stage, resume bool) (bool, error) {
	if !resume {
		return true, nil
	}
	rec, err := t.repo.GetProgress(ctx, string(stage))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("load progress for %s: %w", stage, err)
	}
	if rec.Status == store.StatusCompleted {
		t.logger.Info("stage already completed, skipping",
			zap.String("stage", string(stage)),
			zap.Int("items_done", rec.ItemsDone),
		)
		return false, nil
	}
	if rec.Status == store.StatusFailed && rec.ErrorMessage != nil {
		t.logger.Info("retrying previously failed stage",
			zap.String("stage", string(stage)),
			zap.String("last_error", *rec.ErrorMessage),
		)
	}
	return true, nil
}

// Start marks a stage in_progress with the known work size.
func (t *Tracker) Start(ctx context.Context, stage Stage, itemsTotal int) error {
	if err := t.repo.StartProgress(ctx, string(stage), itemsTotal, t.now()); err != nil {
		return fmt.Errorf("start progress for %s: %w", stage, err)
	}
	return nil
}

// Advance records the current done counter for a stage.
func (t *Tracker) Advance(ctx context.Context, stage Stage, itemsDone int) error {
	if err := t.repo.AdvanceProgress(ctx, string(stage), itemsDone, t.now()); err != nil {
		return fmt.Errorf("advance progress for %s: %w", stage, err)
	}
	return nil
}

// Complete marks a stage completed.
func (t *Tracker) Complete(ctx context.Context, stage Stage) error {
	if err := t.repo.CompleteProgress(ctx, string(stage), t.now()); err != nil {
		return fmt.Errorf("complete progress for %s: %w", stage, err)
	}
	return nil
}

// Fail marks a stage failed with the error's text. A later run with resume
// enabled will retry the stage.
func (t *Tracker) Fail(ctx context.Context, stage Stage, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := t.repo.FailProgress(ctx, string(stage), message, t.now()); err != nil {
		return fmt.Errorf("fail progress for %s: %w", stage, err)
	}
	return nil
}

// Snapshot returns every stage record for status reporting.
func (t *Tracker) Snapshot(ctx context.Context) ([]store.ProgressRecord, error) {
	recs, err := t.repo.ListProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return recs, nil
}

// Reset drops every stage record so the next run starts from scratch.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.repo.ResetProgress(ctx); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}
