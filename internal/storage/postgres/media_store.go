package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

// UpsertAssets registers media assets, keeping existing download outcomes.
func (s *Store) UpsertAssets(ctx context.Context, assets []store.MediaAsset) error {
	query := `
		INSERT INTO media_assets (parcel_id, url, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (parcel_id, url) DO NOTHING;
	`
	for _, a := range assets {
		if _, err := s.pool.Exec(ctx, query, a.ParcelID, a.URL, a.Kind); err != nil {
			return fmt.Errorf("failed to upsert media asset %s: %w", a.URL, err)
		}
	}
	return nil
}

// PendingAssets returns assets not yet downloaded, failures included.
func (s *Store) PendingAssets(ctx context.Context) ([]store.MediaAsset, error) {
	query := `
		SELECT parcel_id, url, kind, path, downloaded, downloaded_at, last_error
		FROM media_assets
		WHERE NOT downloaded
		ORDER BY parcel_id, url;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending assets: %w", err)
	}
	defer rows.Close()

	var assets []store.MediaAsset
	for rows.Next() {
		var a store.MediaAsset
		err := rows.Scan(&a.ParcelID, &a.URL, &a.Kind, &a.Path, &a.Downloaded, &a.DownloadedAt, &a.LastError)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media asset row: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// MarkAssetDownloaded records a completed transfer and clears the error.
func (s *Store) MarkAssetDownloaded(ctx context.Context, parcelID, url, path string, at time.Time) error {
	query := `
		UPDATE media_assets
		SET downloaded = TRUE, downloaded_at = $1, path = $2, last_error = ''
		WHERE parcel_id = $3 AND url = $4;
	`
	res, err := s.pool.Exec(ctx, query, at, path, parcelID, url)
	if err != nil {
		return fmt.Errorf("failed to mark asset downloaded: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkAssetFailed records a failed transfer without blocking retries.
func (s *Store) MarkAssetFailed(ctx context.Context, parcelID, url, message string) error {
	query := `
		UPDATE media_assets
		SET last_error = $1
		WHERE parcel_id = $2 AND url = $3;
	`
	res, err := s.pool.Exec(ctx, query, message, parcelID, url)
	if err != nil {
		return fmt.Errorf("failed to mark asset failed: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
