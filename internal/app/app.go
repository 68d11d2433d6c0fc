// Package app wires configuration into live services and owns their
// lifecycle. It is the only package that knows which concrete backends are
// in play; everything below it works against interfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	gcsapi "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/api"
	"github.com/parcelworks/assessor-scraper/internal/browser"
	"github.com/parcelworks/assessor-scraper/internal/config"
	"github.com/parcelworks/assessor-scraper/internal/fetch"
	"github.com/parcelworks/assessor-scraper/internal/geocode"
	"github.com/parcelworks/assessor-scraper/internal/logging"
	"github.com/parcelworks/assessor-scraper/internal/media"
	"github.com/parcelworks/assessor-scraper/internal/pipeline"
	"github.com/parcelworks/assessor-scraper/internal/progress"
	progresssinks "github.com/parcelworks/assessor-scraper/internal/progress/sinks"
	"github.com/parcelworks/assessor-scraper/internal/publish"
	memorypublisher "github.com/parcelworks/assessor-scraper/internal/publish/memory"
	pubsubpublisher "github.com/parcelworks/assessor-scraper/internal/publish/pubsub"
	"github.com/parcelworks/assessor-scraper/internal/scraper"
	"github.com/parcelworks/assessor-scraper/internal/storage"
	gcsstorage "github.com/parcelworks/assessor-scraper/internal/storage/gcs"
	localstorage "github.com/parcelworks/assessor-scraper/internal/storage/local"
	memorystorage "github.com/parcelworks/assessor-scraper/internal/storage/memory"
	pgstorage "github.com/parcelworks/assessor-scraper/internal/storage/postgres"
	"github.com/parcelworks/assessor-scraper/internal/store"
)

// App holds the application's long-lived services.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	st        store.Store
	blobs     storage.BlobStore
	gcsClient *gcsapi.Client

	publisher    publish.Publisher
	pubsubPub    *pubsubpublisher.Publisher
	pubsubClient *gcppubsub.Client

	registry *prometheus.Registry
	hub      *progress.Hub
	tracker  *progress.Tracker

	apiServer *api.Server

	// Browser sessions and the pipeline are built lazily so commands that
	// only read state never launch Chrome.
	sessions []*browser.Session
	pipe     *pipeline.Pipeline
}

// Build constructs every eagerly needed service from the configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application services",
		zap.String("site", cfg.Site.BaseURL),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("publish", cfg.Publish.Backend),
	)

	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	if err := a.setupBlobStore(ctx); err != nil {
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if err := a.setupProgress(ctx); err != nil {
		return nil, err
	}

	a.tracker = progress.NewTracker(a.st, logger.Named("tracker"))
	a.apiServer = api.NewServer(a.st, a.registry, logger.Named("api"), api.Config{
		APIKey: cfg.Server.APIKey,
	})
	return a, nil
}

// Logger exposes the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the durable store.
func (a *App) Store() store.Store { return a.st }

// Tracker exposes the progress tracker.
func (a *App) Tracker() *progress.Tracker { return a.tracker }

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, state will not survive restarts")
		a.st = memorystorage.NewStore()
		return nil
	}
	st, err := pgstorage.New(ctx, pgstorage.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        int32(a.cfg.DB.MaxConns),
		MinConns:        int32(a.cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(a.cfg.DB.ConnLifetimeMinute) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return fmt.Errorf("database migration failed: %w", err)
	}
	a.st = st
	a.logger.Info("postgres store initialized")
	return nil
}

func (a *App) setupBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(ctx, client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("gcs blob store initialized", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("local blob store initialized", zap.String("dir", a.cfg.Storage.LocalDir))
	default:
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("in-memory blob store initialized")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Publish.Backend {
	case "pubsub":
		client, err := gcppubsub.NewClient(ctx, a.cfg.Publish.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPub = pubsubpublisher.New(client)
		a.publisher = a.pubsubPub
		a.logger.Info("pubsub publisher initialized", zap.String("project", a.cfg.Publish.ProjectID))
	case "memory":
		a.publisher = memorypublisher.New()
		a.logger.Info("in-memory publisher initialized")
	default:
		// Events stay off unless asked for.
	}
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      a.logger.Named("progress"),
	},
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	)
	return nil
}

// Pipeline lazily builds the scrape pipeline, launching one browser session
// per worker on first use.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	if a.pipe != nil {
		return a.pipe, nil
	}

	workers := a.cfg.Scraper.Workers
	browserCfg := browser.Config{
		UserAgent:   a.cfg.Browser.UserAgent,
		NavTimeout:  a.cfg.Browser.NavTimeout(),
		PageDelay:   a.cfg.Browser.PageDelay(),
		SettleDelay: a.cfg.Browser.SettleDelay(),
		MaxAttempts: a.cfg.Browser.MaxAttempts,
	}

	geocoder := a.buildGeocoder()

	var (
		listings []pipeline.ListingSource
		details  []pipeline.DetailSource
	)
	for i := 0; i < workers; i++ {
		session, err := browser.New(browserCfg, a.logger.Named("browser").With(zap.Int("index", i)))
		if err != nil {
			return nil, fmt.Errorf("browser session %d init failed: %w", i, err)
		}
		a.sessions = append(a.sessions, session)

		listing, err := scraper.NewListingScraper(session, a.logger.Named("listings"), a.cfg.Site.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("listing scraper init failed: %w", err)
		}
		listings = append(listings, listing)
		details = append(details, scraper.NewDetailScraper(
			session,
			a.logger.Named("details"),
			geocoder,
			a.cfg.Site.City,
			a.cfg.Site.State,
		))
	}

	streets, err := scraper.NewStreetScraper(
		a.sessions[0],
		a.logger.Named("streets"),
		a.cfg.Site.BaseURL,
		a.cfg.Site.StreetsURL,
	)
	if err != nil {
		return nil, fmt.Errorf("street scraper init failed: %w", err)
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: a.cfg.Media.UserAgent,
		Timeout:   time.Duration(a.cfg.Media.TimeoutSeconds) * time.Second,
	})
	downloader := media.New(fetcher, a.blobs, a.st, a.logger.Named("media"), media.Config{
		Concurrency: a.cfg.Media.Concurrency,
	})

	a.pipe = pipeline.New(pipeline.Deps{
		Store:     a.st,
		Streets:   streets,
		Listings:  listings,
		Details:   details,
		Media:     downloader,
		Tracker:   a.tracker,
		Emitter:   a.hub,
		Publisher: a.publisher,
		Logger:    a.logger.Named("pipeline"),
	}, pipeline.Config{
		StreetLimit: a.cfg.Scraper.StreetLimit,
	})
	return a.pipe, nil
}

func (a *App) buildGeocoder() scraper.Geocoder {
	if len(a.cfg.Geocoding.Providers) == 0 {
		a.logger.Info("geocoding disabled")
		return nil
	}
	client := &http.Client{Timeout: 15 * time.Second}
	delays := make(map[string]time.Duration, len(a.cfg.Geocoding.Providers))
	var providers []geocode.Provider
	for _, name := range a.cfg.Geocoding.Providers {
		var p geocode.Provider
		switch name {
		case "census":
			p = geocode.NewCensusProvider(client)
		case "nominatim":
			p = geocode.NewNominatimProvider(client, a.cfg.Geocoding.UserAgent)
		case "google":
			p = geocode.NewGoogleProvider(client, a.cfg.Geocoding.GoogleAPIKey)
		default:
			a.logger.Warn("skipping unknown geocoding provider", zap.String("provider", name))
			continue
		}
		providers = append(providers, p)
		delays[p.Name()] = a.cfg.Geocoding.ProviderDelay()
	}
	if len(providers) == 0 {
		return nil
	}
	return geocode.NewFacade(geocode.FacadeConfig{
		ProviderDelays: delays,
		Bounds:         a.cfg.Geocoding.Bounds(),
	}, a.logger.Named("geocode"), providers...)
}

// Run executes the pipeline while serving the status API, then shuts both
// down. Interrupt signals cancel the run; progress already written stays
// durable so the next resume picks up from it.
func (a *App) Run(ctx context.Context, resume bool) (pipeline.Summary, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := a.Pipeline(ctx)
	if err != nil {
		return pipeline.Summary{}, err
	}

	srv := a.httpServer()
	go func() {
		a.logger.Info("status server started", zap.Int("port", a.cfg.Server.Port))
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.logger.Error("status server error", zap.Error(serveErr))
		}
	}()
	defer a.shutdownHTTP(srv)

	return pipe.Run(ctx, resume)
}

// Serve runs only the status API, blocking until a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := a.httpServer()
	go func() {
		a.logger.Info("status server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.shutdownHTTP(srv)
	return nil
}

func (a *App) httpServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) shutdownHTTP(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("status server shutdown error", zap.Error(err))
	}
}

// Close releases every service in reverse dependency order.
func (a *App) Close(ctx context.Context) {
	for _, session := range a.sessions {
		session.Close()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPub != nil {
		a.pubsubPub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.st != nil {
		a.st.Close()
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}
