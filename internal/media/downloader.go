// Package media downloads parcel photos and layout sketches into blob
// storage. Downloads are content-addressed by source URL so reruns skip
// anything already transferred.
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/fetch"
	"github.com/parcelworks/assessor-scraper/internal/storage"
	"github.com/parcelworks/assessor-scraper/internal/store"
)

const defaultConcurrency = 5

// Fetcher retrieves asset bytes over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Response, error)
}

// Config controls download behavior.
type Config struct {
	// Concurrency bounds parallel transfers against the site.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Stats summarizes one download sweep.
type Stats struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Downloader transfers pending media assets into a blob store and records
// each outcome so interrupted sweeps resume where they stopped.
type Downloader struct {
	fetcher Fetcher
	blobs   storage.BlobStore
	assets  store.MediaRepository
	logger  *zap.Logger
	sem     chan struct{}
	now     func() time.Time
}

// New builds a Downloader.
func New(fetcher Fetcher, blobs storage.BlobStore, assets store.MediaRepository, logger *zap.Logger, cfg Config) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Downloader{
		fetcher: fetcher,
		blobs:   blobs,
		assets:  assets,
		logger:  logger,
		sem:     make(chan struct{}, concurrency),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run downloads every pending asset, earlier failures included.
func (d *Downloader) Run(ctx context.Context) (Stats, error) {
	pending, err := d.assets.PendingAssets(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list pending assets: %w", err)
	}
	return d.DownloadAll(ctx, pending), nil
}

// DownloadAll transfers the given assets with bounded concurrency. Failures
// are recorded per asset and never abort the sweep.
func (d *Downloader) DownloadAll(ctx context.Context, assets []store.MediaAsset) Stats {
	var (
		mu    sync.Mutex
		stats Stats
		wg    sync.WaitGroup
	)

loop:
	for _, asset := range assets {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		wg.Add(1)
		go func(asset store.MediaAsset) {
			defer wg.Done()
			defer func() { <-d.sem }()

			skipped, err := d.download(ctx, asset)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
			case skipped:
				stats.Skipped++
			default:
				stats.Downloaded++
			}
		}(asset)
	}

	wg.Wait()
	d.logger.Info("media sweep finished",
		zap.Int("downloaded", stats.Downloaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats
}

func (d *Downloader) download(ctx context.Context, asset store.MediaAsset) (skipped bool, err error) {
	blobPath := AssetPath(asset)

	exists, err := d.blobs.Exists(ctx, blobPath)
	if err != nil {
		return false, d.fail(ctx, asset, fmt.Errorf("check blob: %w", err))
	}
	if exists {
		if err := d.assets.MarkAssetDownloaded(ctx, asset.ParcelID, asset.URL, blobPath, d.now()); err != nil {
			return false, fmt.Errorf("mark downloaded: %w", err)
		}
		return true, nil
	}

	resp, err := d.fetcher.Fetch(ctx, asset.URL)
	if err != nil {
		return false, d.fail(ctx, asset, err)
	}

	if _, err := d.blobs.Put(ctx, blobPath, resp.ContentType, bytes.NewReader(resp.Body)); err != nil {
		return false, d.fail(ctx, asset, fmt.Errorf("store blob: %w", err))
	}

	if err := d.assets.MarkAssetDownloaded(ctx, asset.ParcelID, asset.URL, blobPath, d.now()); err != nil {
		return false, fmt.Errorf("mark downloaded: %w", err)
	}

	d.logger.Debug("asset downloaded",
		zap.String("parcel_id", asset.ParcelID),
		zap.String("path", blobPath),
		zap.Int("bytes", len(resp.Body)),
	)
	return false, nil
}

// fail records the failure on the asset row and returns the original error.
func (d *Downloader) fail(ctx context.Context, asset store.MediaAsset, cause error) error {
	d.logger.Warn("asset download failed",
		zap.String("parcel_id", asset.ParcelID),
		zap.String("url", asset.URL),
		zap.Error(cause),
	)
	if err := d.assets.MarkAssetFailed(ctx, asset.ParcelID, asset.URL, cause.Error()); err != nil {
		d.logger.Error("record asset failure", zap.Error(err))
	}
	return cause
}

// AssetPath derives the blob path for an asset: kind directory, parcel
// directory, then a digest of the source URL with its original extension.
func AssetPath(asset store.MediaAsset) string {
	dir := "photos"
	if asset.Kind == store.AssetLayout {
		dir = "layouts"
	}
	sum := sha256.Sum256([]byte(asset.URL))
	name := hex.EncodeToString(sum[:])[:16] + extension(asset.URL)
	return path.Join(dir, asset.ParcelID, name)
}

func extension(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ".jpg"
	}
}
