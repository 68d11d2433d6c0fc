package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Street is one entry from the municipality's street index.
type Street struct {
	// Name is the normalized uppercase street name, unique per site.
	Name string
	// URL is the street's listing page.
	URL string
	// PropertyCount is the parcel count advertised by the index, when shown.
	PropertyCount int
	// Scraped marks that the listing stage finished this street.
	Scraped bool
	// ScrapedAt is nil until Scraped flips true.
	ScrapedAt *time.Time
}

// ParcelRef points at one parcel discovered on a street listing page. The
// detail stage resolves refs into full Parcel records.
type ParcelRef struct {
	// ParcelID is the site's numeric parcel identifier, as a string.
	ParcelID string
	// Address is the normalized situs address from the listing row.
	Address string
	// DetailURL is the absolute URL of the parcel detail page.
	DetailURL string
	// Street names the street the ref was discovered under.
	Street string
}

// Parcel is a fully scraped parcel record. Detail holds the extracted
// document as JSON so the schema can evolve without migrations.
type Parcel struct {
	ParcelID  string
	Street    string
	Address   string
	Detail    json.RawMessage
	ScrapedAt time.Time
}

// AssetKind distinguishes the two media types a parcel page links to.
type AssetKind string

// Media asset kinds persisted in media_assets.kind.
const (
	AssetPhoto  AssetKind = "photo"
	AssetLayout AssetKind = "layout"
)

// MediaAsset is one downloadable image keyed by (parcel_id, url).
type MediaAsset struct {
	ParcelID string
	URL      string
	Kind     AssetKind
	// Path is the blob store path once the download succeeds.
	Path string
	// Downloaded marks a completed transfer.
	Downloaded bool
	// DownloadedAt is nil until Downloaded flips true.
	DownloadedAt *time.Time
	// LastError records the most recent failure, empty after success.
	LastError string
}

// StreetRepository persists the street index.
type StreetRepository interface {
	// UpsertStreets inserts new streets and refreshes URL/count on conflict.
	// Scraped flags on existing rows are never reset.
	UpsertStreets(ctx context.Context, streets []Street) error
	// ListStreets returns every known street ordered by name.
	ListStreets(ctx context.Context) ([]Street, error)
	// UnscrapedStreets returns streets the listing stage has not finished.
	UnscrapedStreets(ctx context.Context) ([]Street, error)
	// MarkStreetScraped flips the scraped flag for one street.
	MarkStreetScraped(ctx context.Context, name string, at time.Time) error
}

// ParcelRepository persists parcel refs and scraped parcel records.
type ParcelRepository interface {
	// UpsertRefs inserts refs discovered on a listing page, first write wins
	// per parcel ID.
	UpsertRefs(ctx context.Context, refs []ParcelRef) error
	// PendingRefs returns refs with no scraped parcel record yet.
	PendingRefs(ctx context.Context) ([]ParcelRef, error)
	// SaveParcel upserts a scraped parcel record.
	SaveParcel(ctx context.Context, p Parcel) error
	// GetParcel loads one parcel or returns ErrNotFound.
	GetParcel(ctx context.Context, parcelID string) (Parcel, error)
	// CountParcels returns the number of scraped parcel records.
	CountParcels(ctx context.Context) (int64, error)
}

// MediaRepository persists media asset rows and download outcomes.
type MediaRepository interface {
	// UpsertAssets registers assets for download, keeping existing outcomes.
	UpsertAssets(ctx context.Context, assets []MediaAsset) error
	// PendingAssets returns assets not yet downloaded, including earlier
	// failures so a later sweep retries them.
	PendingAssets(ctx context.Context) ([]MediaAsset, error)
	// MarkAssetDownloaded records a completed transfer and clears LastError.
	MarkAssetDownloaded(ctx context.Context, parcelID, url, path string, at time.Time) error
	// MarkAssetFailed records a failed transfer without blocking retries.
	MarkAssetFailed(ctx context.Context, parcelID, url, message string) error
}

// Store bundles every repository plus progress tracking behind one handle.
type Store interface {
	StreetRepository
	ParcelRepository
	MediaRepository
	ProgressRepository
	Close()
}
