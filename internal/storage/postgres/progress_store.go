package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

// GetProgress loads one stage's record or returns store.ErrNotFound.
func (s *Store) GetProgress(ctx context.Context, taskName string) (store.ProgressRecord, error) {
	query := `
		SELECT task_name, status, items_total, items_done, started_at, updated_at, completed_at, error_message
		FROM scraping_progress
		WHERE task_name = $1;
	`
	var rec store.ProgressRecord
	err := s.pool.QueryRow(ctx, query, taskName).Scan(
		&rec.TaskName,
		&rec.Status,
		&rec.ItemsTotal,
		&rec.ItemsDone,
		&rec.StartedAt,
		&rec.UpdatedAt,
		&rec.CompletedAt,
		&rec.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ProgressRecord{}, store.ErrNotFound
		}
		return store.ProgressRecord{}, fmt.Errorf("failed to get progress: %w", err)
	}
	return rec, nil
}

// ListProgress returns every stage record ordered by task name.
func (s *Store) ListProgress(ctx context.Context) ([]store.ProgressRecord, error) {
	query := `
		SELECT task_name, status, items_total, items_done, started_at, updated_at, completed_at, error_message
		FROM scraping_progress
		ORDER BY task_name;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var recs []store.ProgressRecord
	for rows.Next() {
		var rec store.ProgressRecord
		err := rows.Scan(
			&rec.TaskName,
			&rec.Status,
			&rec.ItemsTotal,
			&rec.ItemsDone,
			&rec.StartedAt,
			&rec.UpdatedAt,
			&rec.CompletedAt,
			&rec.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// StartProgress upserts the stage into in_progress. The original started_at
// survives restarts so elapsed time stays honest.
func (s *Store) StartProgress(ctx context.Context, taskName string, itemsTotal int, at time.Time) error {
	query := `
		INSERT INTO scraping_progress (task_name, status, items_total, items_done, started_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (task_name) DO UPDATE
		SET status = EXCLUDED.status,
			items_total = EXCLUDED.items_total,
			updated_at = EXCLUDED.updated_at,
			completed_at = NULL,
			error_message = NULL;
	`
	if _, err := s.pool.Exec(ctx, query, taskName, store.StatusInProgress, itemsTotal, at); err != nil {
		return fmt.Errorf("failed to start progress: %w", err)
	}
	return nil
}

// AdvanceProgress updates the done counter and touches updated_at.
func (s *Store) AdvanceProgress(ctx context.Context, taskName string, itemsDone int, at time.Time) error {
	query := `
		UPDATE scraping_progress
		SET items_done = $1, updated_at = $2
		WHERE task_name = $3;
	`
	res, err := s.pool.Exec(ctx, query, itemsDone, at, taskName)
	if err != nil {
		return fmt.Errorf("failed to advance progress: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CompleteProgress marks the stage completed.
func (s *Store) CompleteProgress(ctx context.Context, taskName string, at time.Time) error {
	query := `
		UPDATE scraping_progress
		SET status = $1, completed_at = $2, updated_at = $2, error_message = NULL
		WHERE task_name = $3;
	`
	res, err := s.pool.Exec(ctx, query, store.StatusCompleted, at, taskName)
	if err != nil {
		return fmt.Errorf("failed to complete progress: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FailProgress marks the stage failed with a reason.
func (s *Store) FailProgress(ctx context.Context, taskName string, message string, at time.Time) error {
	query := `
		UPDATE scraping_progress
		SET status = $1, error_message = $2, updated_at = $3
		WHERE task_name = $4;
	`
	res, err := s.pool.Exec(ctx, query, store.StatusFailed, message, at, taskName)
	if err != nil {
		return fmt.Errorf("failed to fail progress: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ResetProgress deletes every stage record so a run starts clean.
func (s *Store) ResetProgress(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scraping_progress;`); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	return nil
}
