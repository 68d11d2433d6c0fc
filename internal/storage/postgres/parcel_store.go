package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

// UpsertRefs inserts parcel refs, first write wins per parcel ID.
func (s *Store) UpsertRefs(ctx context.Context, refs []store.ParcelRef) error {
	query := `
		INSERT INTO parcel_refs (parcel_id, street, address, detail_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (parcel_id) DO NOTHING;
	`
	for _, ref := range refs {
		if _, err := s.pool.Exec(ctx, query, ref.ParcelID, ref.Street, ref.Address, ref.DetailURL); err != nil {
			return fmt.Errorf("failed to upsert parcel ref %s: %w", ref.ParcelID, err)
		}
	}
	return nil
}

// PendingRefs returns refs with no scraped parcel record yet.
func (s *Store) PendingRefs(ctx context.Context) ([]store.ParcelRef, error) {
	query := `
		SELECT r.parcel_id, r.street, r.address, r.detail_url
		FROM parcel_refs r
		LEFT JOIN parcels p ON p.parcel_id = r.parcel_id
		WHERE p.parcel_id IS NULL
		ORDER BY r.parcel_id;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending refs: %w", err)
	}
	defer rows.Close()

	var refs []store.ParcelRef
	for rows.Next() {
		var ref store.ParcelRef
		if err := rows.Scan(&ref.ParcelID, &ref.Street, &ref.Address, &ref.DetailURL); err != nil {
			return nil, fmt.Errorf("failed to scan parcel ref row: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SaveParcel upserts a scraped parcel record.
func (s *Store) SaveParcel(ctx context.Context, p store.Parcel) error {
	if p.ParcelID == "" {
		return fmt.Errorf("parcel id is required")
	}
	query := `
		INSERT INTO parcels (parcel_id, street, address, detail, scraped_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (parcel_id) DO UPDATE
		SET street = EXCLUDED.street,
			address = EXCLUDED.address,
			detail = EXCLUDED.detail,
			scraped_at = EXCLUDED.scraped_at;
	`
	if _, err := s.pool.Exec(ctx, query, p.ParcelID, p.Street, p.Address, p.Detail, p.ScrapedAt); err != nil {
		return fmt.Errorf("failed to save parcel %s: %w", p.ParcelID, err)
	}
	return nil
}

// GetParcel loads one parcel or returns store.ErrNotFound.
func (s *Store) GetParcel(ctx context.Context, parcelID string) (store.Parcel, error) {
	query := `
		SELECT parcel_id, street, address, detail, scraped_at
		FROM parcels
		WHERE parcel_id = $1;
	`
	var p store.Parcel
	err := s.pool.QueryRow(ctx, query, parcelID).Scan(&p.ParcelID, &p.Street, &p.Address, &p.Detail, &p.ScrapedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Parcel{}, store.ErrNotFound
		}
		return store.Parcel{}, fmt.Errorf("failed to get parcel: %w", err)
	}
	return p, nil
}

// CountParcels returns the number of scraped parcel records.
func (s *Store) CountParcels(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM parcels;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count parcels: %w", err)
	}
	return count, nil
}
