// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool querier
}

// New connects a pool using the provided config and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS streets (
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		property_count INTEGER NOT NULL DEFAULT 0,
		scraped BOOLEAN NOT NULL DEFAULT FALSE,
		scraped_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS parcel_refs (
		parcel_id TEXT PRIMARY KEY,
		street TEXT NOT NULL,
		address TEXT NOT NULL,
		detail_url TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS parcels (
		parcel_id TEXT PRIMARY KEY,
		street TEXT NOT NULL,
		address TEXT NOT NULL,
		detail JSONB NOT NULL,
		scraped_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS media_assets (
		parcel_id TEXT NOT NULL,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		downloaded BOOLEAN NOT NULL DEFAULT FALSE,
		downloaded_at TIMESTAMPTZ,
		last_error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (parcel_id, url)
	)`,
	`CREATE TABLE IF NOT EXISTS scraping_progress (
		task_name TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		items_total INTEGER NOT NULL DEFAULT 0,
		items_done INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		error_message TEXT
	)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// UpsertStreets inserts new streets and refreshes URL/count on conflict.
func (s *Store) UpsertStreets(ctx context.Context, streets []store.Street) error {
	query := `
		INSERT INTO streets (name, url, property_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET url = EXCLUDED.url, property_count = EXCLUDED.property_count;
	`
	for _, st := range streets {
		if _, err := s.pool.Exec(ctx, query, st.Name, st.URL, st.PropertyCount); err != nil {
			return fmt.Errorf("failed to upsert street %q: %w", st.Name, err)
		}
	}
	return nil
}

// ListStreets returns every known street ordered by name.
func (s *Store) ListStreets(ctx context.Context) ([]store.Street, error) {
	return s.queryStreets(ctx, `
		SELECT name, url, property_count, scraped, scraped_at
		FROM streets
		ORDER BY name;
	`)
}

// UnscrapedStreets returns streets the listing stage has not finished.
func (s *Store) UnscrapedStreets(ctx context.Context) ([]store.Street, error) {
	return s.queryStreets(ctx, `
		SELECT name, url, property_count, scraped, scraped_at
		FROM streets
		WHERE NOT scraped
		ORDER BY name;
	`)
}

func (s *Store) queryStreets(ctx context.Context, query string) ([]store.Street, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list streets: %w", err)
	}
	defer rows.Close()

	var streets []store.Street
	for rows.Next() {
		var st store.Street
		if err := rows.Scan(&st.Name, &st.URL, &st.PropertyCount, &st.Scraped, &st.ScrapedAt); err != nil {
			return nil, fmt.Errorf("failed to scan street row: %w", err)
		}
		streets = append(streets, st)
	}
	return streets, rows.Err()
}

// MarkStreetScraped flips the scraped flag for one street.
func (s *Store) MarkStreetScraped(ctx context.Context, name string, at time.Time) error {
	query := `
		UPDATE streets
		SET scraped = TRUE, scraped_at = $1
		WHERE name = $2;
	`
	res, err := s.pool.Exec(ctx, query, at, name)
	if err != nil {
		return fmt.Errorf("failed to mark street scraped: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
