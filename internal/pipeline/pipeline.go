// Package pipeline orchestrates the four scrape stages: street index,
// per-street listings, parcel details, and media download. Every stage
// records its progress durably so an interrupted run resumes where it
// stopped instead of starting over.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/media"
	"github.com/parcelworks/assessor-scraper/internal/pool"
	"github.com/parcelworks/assessor-scraper/internal/progress"
	"github.com/parcelworks/assessor-scraper/internal/publish"
	"github.com/parcelworks/assessor-scraper/internal/scraper"
	"github.com/parcelworks/assessor-scraper/internal/store"
)

// failWriteTimeout bounds the durable failure write that happens after a
// stage errors, since the stage's own context may be on its way out.
const failWriteTimeout = 5 * time.Second

// StreetSource scrapes the full street index.
type StreetSource interface {
	ScrapeAll(ctx context.Context) ([]store.Street, error)
}

// ListingSource scrapes one street's parcel refs. Implementations hold a
// browser tab and are not safe for concurrent use; the pipeline checks one
// out per in-flight street.
type ListingSource interface {
	ScrapeStreet(ctx context.Context, street store.Street) ([]store.ParcelRef, error)
}

// DetailSource scrapes one parcel's detail record. Same single-tab
// constraint as ListingSource.
type DetailSource interface {
	Scrape(ctx context.Context, ref store.ParcelRef) (*scraper.ParcelRecord, error)
}

// MediaDownloader sweeps pending media assets.
type MediaDownloader interface {
	Run(ctx context.Context) (media.Stats, error)
}

// Deps carries the pipeline's collaborators. Listings and Details take one
// source per worker; their length sets the stage's parallelism.
type Deps struct {
	Store     store.Store
	Streets   StreetSource
	Listings  []ListingSource
	Details   []DetailSource
	Media     MediaDownloader
	Tracker   *progress.Tracker
	Emitter   progress.Emitter
	Publisher publish.Publisher
	Logger    *zap.Logger
}

// Config tunes a run.
type Config struct {
	// StreetLimit caps how many streets the listing stage processes.
	// Zero means no cap; used for smoke runs against the live site.
	StreetLimit int
}

// Summary reports what one run accomplished.
type Summary struct {
	RunID           string
	Streets         int
	StreetsFailed   int
	Parcels         int
	ParcelsFailed   int
	MediaDownloaded int
	MediaSkipped    int
	MediaFailed     int
	Duration        time.Duration
}

// Pipeline runs the scrape stages in order.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run executes every stage. With resume enabled, stages whose progress
// records show completion are skipped and partial stages pick up from the
// durable state instead of rescraping.
func (p *Pipeline) Run(ctx context.Context, resume bool) (Summary, error) {
	runID := uuid.New()
	started := p.now()
	summary := Summary{RunID: runID.String()}

	p.emit(runID, progress.Event{Kind: progress.KindRunStart})
	p.logger.Info("run starting",
		zap.String("run_id", summary.RunID),
		zap.Bool("resume", resume),
	)

	stages := []struct {
		stage progress.Stage
		run   func(context.Context, uuid.UUID, *Summary) error
	}{
		{progress.StageStreets, p.runStreets},
		{progress.StageListings, p.runListings},
		{progress.StageDetails, p.runDetails},
		{progress.StageMedia, p.runMedia},
	}

	for _, s := range stages {
		ok, err := p.deps.Tracker.ShouldRun(ctx, s.stage, resume)
		if err != nil {
			return summary, err
		}
		if !ok {
			p.logger.Info("stage already complete, skipping", zap.String("stage", string(s.stage)))
			continue
		}
		if err := p.runStage(ctx, runID, s.stage, s.run, &summary); err != nil {
			p.emit(runID, progress.Event{Kind: progress.KindRunError, Note: err.Error()})
			return summary, err
		}
	}

	summary.Duration = p.now().Sub(started)
	p.emit(runID, progress.Event{Kind: progress.KindRunDone, Dur: summary.Duration})
	p.publishRunFinished(ctx, summary)
	p.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("streets", summary.Streets),
		zap.Int("parcels", summary.Parcels),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (p *Pipeline) runStage(ctx context.Context, runID uuid.UUID, stage progress.Stage, run func(context.Context, uuid.UUID, *Summary) error, summary *Summary) error {
	started := p.now()
	p.emit(runID, progress.Event{Kind: progress.KindStageStart, Stage: stage})

	if err := run(ctx, runID, summary); err != nil {
		p.emit(runID, progress.Event{
			Kind:  progress.KindStageError,
			Stage: stage,
			Dur:   p.now().Sub(started),
			Note:  err.Error(),
		})
		// An interrupt is not a stage failure: the record stays
		// in_progress so the next resumed run picks the stage back up.
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
			if failErr := p.deps.Tracker.Fail(failCtx, stage, err); failErr != nil {
				p.logger.Error("record stage failure", zap.Error(failErr))
			}
			cancel()
		}
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	p.emit(runID, progress.Event{
		Kind:  progress.KindStageDone,
		Stage: stage,
		Dur:   p.now().Sub(started),
	})
	return nil
}

// runStreets scrapes the A-Z street index and stores it. Rescrapes refresh
// URLs without clearing per-street listing progress.
func (p *Pipeline) runStreets(ctx context.Context, runID uuid.UUID, summary *Summary) error {
	if err := p.deps.Tracker.Start(ctx, progress.StageStreets, 0); err != nil {
		return err
	}

	streets, err := p.deps.Streets.ScrapeAll(ctx)
	if err != nil {
		return err
	}
	if err := p.deps.Store.UpsertStreets(ctx, streets); err != nil {
		return err
	}
	summary.Streets = len(streets)

	if err := p.deps.Tracker.Advance(ctx, progress.StageStreets, len(streets)); err != nil {
		return err
	}
	return p.deps.Tracker.Complete(ctx, progress.StageStreets)
}

// runListings walks each unscraped street's listing pages with a worker
// pool. Streets are marked scraped one at a time, so a crash mid-stage only
// repeats the streets that never finished.
func (p *Pipeline) runListings(ctx context.Context, runID uuid.UUID, summary *Summary) error {
	streets, err := p.deps.Store.UnscrapedStreets(ctx)
	if err != nil {
		return err
	}
	if p.cfg.StreetLimit > 0 && len(streets) > p.cfg.StreetLimit {
		streets = streets[:p.cfg.StreetLimit]
	}
	if err := p.deps.Tracker.Start(ctx, progress.StageListings, len(streets)); err != nil {
		return err
	}
	if len(streets) == 0 {
		return p.deps.Tracker.Complete(ctx, progress.StageListings)
	}

	sources := make(chan ListingSource, len(p.deps.Listings))
	for _, src := range p.deps.Listings {
		sources <- src
	}

	var (
		mu   sync.Mutex
		done int
	)
	workers := pool.New(len(p.deps.Listings), p.logger)
	stats := workers.Run(ctx, streets, func(ctx context.Context, street store.Street) error {
		src := <-sources
		defer func() { sources <- src }()

		itemStart := p.now()
		refs, err := src.ScrapeStreet(ctx, street)
		if err != nil {
			p.emit(runID, progress.Event{
				Kind:   progress.KindItemError,
				Stage:  progress.StageListings,
				Street: street.Name,
				Note:   err.Error(),
			})
			return err
		}
		if err := p.deps.Store.UpsertRefs(ctx, refs); err != nil {
			return fmt.Errorf("store refs for %s: %w", street.Name, err)
		}
		if err := p.deps.Store.MarkStreetScraped(ctx, street.Name, p.now()); err != nil {
			return fmt.Errorf("mark street %s: %w", street.Name, err)
		}

		mu.Lock()
		done++
		current := done
		mu.Unlock()
		if err := p.deps.Tracker.Advance(ctx, progress.StageListings, current); err != nil {
			p.logger.Warn("advance listings progress", zap.Error(err))
		}
		p.emit(runID, progress.Event{
			Kind:   progress.KindItemDone,
			Stage:  progress.StageListings,
			Street: street.Name,
			Dur:    p.now().Sub(itemStart),
		})
		return nil
	})

	summary.StreetsFailed = stats.Failed
	if ctx.Err() != nil {
		return fmt.Errorf("listings interrupted: %w", ctx.Err())
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d streets failed", stats.Failed, len(streets))
	}
	return p.deps.Tracker.Complete(ctx, progress.StageListings)
}

// runDetails scrapes every parcel without a stored record, saving each one
// and registering its media assets as it goes.
func (p *Pipeline) runDetails(ctx context.Context, runID uuid.UUID, summary *Summary) error {
	refs, err := p.deps.Store.PendingRefs(ctx)
	if err != nil {
		return err
	}
	if err := p.deps.Tracker.Start(ctx, progress.StageDetails, len(refs)); err != nil {
		return err
	}
	if len(refs) == 0 {
		return p.deps.Tracker.Complete(ctx, progress.StageDetails)
	}

	sources := make(chan DetailSource, len(p.deps.Details))
	for _, src := range p.deps.Details {
		sources <- src
	}

	var (
		mu     sync.Mutex
		done   int
		failed int
		wg     sync.WaitGroup
	)

feed:
	for _, ref := range refs {
		var src DetailSource
		select {
		case src = <-sources:
		case <-ctx.Done():
			break feed
		}

		wg.Add(1)
		go func(ref store.ParcelRef, src DetailSource) {
			defer wg.Done()
			defer func() { sources <- src }()

			err := p.scrapeParcel(ctx, runID, ref, src)
			mu.Lock()
			if err != nil {
				failed++
			} else {
				done++
			}
			current := done
			mu.Unlock()
			if err == nil {
				if advErr := p.deps.Tracker.Advance(ctx, progress.StageDetails, current); advErr != nil {
					p.logger.Warn("advance details progress", zap.Error(advErr))
				}
			}
		}(ref, src)
	}
	wg.Wait()

	summary.Parcels = done
	summary.ParcelsFailed = failed
	if ctx.Err() != nil {
		return fmt.Errorf("details interrupted: %w", ctx.Err())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d parcels failed", failed, len(refs))
	}
	return p.deps.Tracker.Complete(ctx, progress.StageDetails)
}

func (p *Pipeline) scrapeParcel(ctx context.Context, runID uuid.UUID, ref store.ParcelRef, src DetailSource) error {
	itemStart := p.now()
	record, err := src.Scrape(ctx, ref)
	if err != nil {
		p.logger.Warn("parcel failed",
			zap.String("parcel_id", ref.ParcelID),
			zap.Error(err),
		)
		p.emit(runID, progress.Event{
			Kind:     progress.KindItemError,
			Stage:    progress.StageDetails,
			Street:   ref.Street,
			ParcelID: ref.ParcelID,
			URL:      ref.DetailURL,
			Note:     err.Error(),
		})
		return err
	}

	detail, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode parcel %s: %w", ref.ParcelID, err)
	}
	if err := p.deps.Store.SaveParcel(ctx, store.Parcel{
		ParcelID:  record.ParcelID,
		Street:    ref.Street,
		Address:   record.BasicInfo.Location,
		Detail:    detail,
		ScrapedAt: record.ScrapedAt,
	}); err != nil {
		return fmt.Errorf("save parcel %s: %w", ref.ParcelID, err)
	}

	if assets := recordAssets(record); len(assets) > 0 {
		if err := p.deps.Store.UpsertAssets(ctx, assets); err != nil {
			return fmt.Errorf("register assets for %s: %w", ref.ParcelID, err)
		}
	}

	p.publishParcel(ctx, ref, record)
	p.emit(runID, progress.Event{
		Kind:     progress.KindItemDone,
		Stage:    progress.StageDetails,
		Street:   ref.Street,
		ParcelID: ref.ParcelID,
		URL:      ref.DetailURL,
		Dur:      p.now().Sub(itemStart),
	})
	return nil
}

// runMedia sweeps pending assets. Individual failures stay pending for the
// next sweep; only a wholly failed sweep fails the stage.
func (p *Pipeline) runMedia(ctx context.Context, runID uuid.UUID, summary *Summary) error {
	pending, err := p.deps.Store.PendingAssets(ctx)
	if err != nil {
		return err
	}
	if err := p.deps.Tracker.Start(ctx, progress.StageMedia, len(pending)); err != nil {
		return err
	}

	stats, err := p.deps.Media.Run(ctx)
	if err != nil {
		return err
	}
	summary.MediaDownloaded = stats.Downloaded
	summary.MediaSkipped = stats.Skipped
	summary.MediaFailed = stats.Failed

	if err := p.deps.Tracker.Advance(ctx, progress.StageMedia, stats.Downloaded+stats.Skipped); err != nil {
		p.logger.Warn("advance media progress", zap.Error(err))
	}
	if ctx.Err() != nil {
		return fmt.Errorf("media interrupted: %w", ctx.Err())
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d media assets failed", stats.Failed)
	}
	return p.deps.Tracker.Complete(ctx, progress.StageMedia)
}

// recordAssets turns a record's photo and layout references into asset rows.
func recordAssets(record *scraper.ParcelRecord) []store.MediaAsset {
	assets := make([]store.MediaAsset, 0, len(record.Photos)+len(record.Layouts))
	for _, m := range record.Photos {
		assets = append(assets, store.MediaAsset{
			ParcelID: record.ParcelID,
			URL:      m.URL,
			Kind:     store.AssetPhoto,
		})
	}
	for _, m := range record.Layouts {
		assets = append(assets, store.MediaAsset{
			ParcelID: record.ParcelID,
			URL:      m.URL,
			Kind:     store.AssetLayout,
		})
	}
	return assets
}

func (p *Pipeline) publishParcel(ctx context.Context, ref store.ParcelRef, record *scraper.ParcelRecord) {
	if p.deps.Publisher == nil {
		return
	}
	_, err := p.deps.Publisher.Publish(ctx, publish.TopicParcelScraped, publish.ParcelScraped{
		ParcelID:  record.ParcelID,
		Street:    ref.Street,
		Address:   record.BasicInfo.Location,
		URL:       record.URL,
		ScrapedAt: record.ScrapedAt,
	})
	if err != nil {
		p.logger.Warn("publish parcel event", zap.Error(err))
	}
}

func (p *Pipeline) publishRunFinished(ctx context.Context, summary Summary) {
	if p.deps.Publisher == nil {
		return
	}
	_, err := p.deps.Publisher.Publish(ctx, publish.TopicRunFinished, publish.RunFinished{
		RunID:      summary.RunID,
		Streets:    summary.Streets,
		Parcels:    summary.Parcels,
		Failed:     summary.StreetsFailed + summary.ParcelsFailed,
		FinishedAt: p.now(),
	})
	if err != nil {
		p.logger.Warn("publish run event", zap.Error(err))
	}
}

func (p *Pipeline) emit(runID uuid.UUID, evt progress.Event) {
	if p.deps.Emitter == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = p.now()
	p.deps.Emitter.Emit(evt)
}

// RunStage executes a single stage by itself, honoring resume semantics.
// Stage commands use it to rerun one piece of the pipeline without touching
// the others.
func (p *Pipeline) RunStage(ctx context.Context, stage progress.Stage, resume bool) (Summary, error) {
	runID := uuid.New()
	started := p.now()
	summary := Summary{RunID: runID.String()}

	var run func(context.Context, uuid.UUID, *Summary) error
	switch stage {
	case progress.StageStreets:
		run = p.runStreets
	case progress.StageListings:
		run = p.runListings
	case progress.StageDetails:
		run = p.runDetails
	case progress.StageMedia:
		run = p.runMedia
	default:
		return summary, fmt.Errorf("unknown stage %q", stage)
	}

	ok, err := p.deps.Tracker.ShouldRun(ctx, stage, resume)
	if err != nil {
		return summary, err
	}
	if !ok {
		p.logger.Info("stage already complete, skipping", zap.String("stage", string(stage)))
		return summary, nil
	}
	if err := p.runStage(ctx, runID, stage, run, &summary); err != nil {
		return summary, err
	}
	summary.Duration = p.now().Sub(started)
	return summary, nil
}

// RunStreet scrapes one street end to end: its listing pages, then details
// for every pending parcel found under it. The street must already exist in
// the store, so the streets stage has to have run at least once.
func (p *Pipeline) RunStreet(ctx context.Context, name string) (Summary, error) {
	runID := uuid.New()
	started := p.now()
	summary := Summary{RunID: runID.String()}

	target := strings.ToUpper(strings.TrimSpace(name))
	streets, err := p.deps.Store.ListStreets(ctx)
	if err != nil {
		return summary, err
	}
	var street *store.Street
	for i := range streets {
		if streets[i].Name == target {
			street = &streets[i]
			break
		}
	}
	if street == nil {
		return summary, fmt.Errorf("street %q not found, run the streets stage first", target)
	}

	src := p.deps.Listings[0]
	refs, err := src.ScrapeStreet(ctx, *street)
	if err != nil {
		return summary, fmt.Errorf("scrape street %s: %w", target, err)
	}
	if err := p.deps.Store.UpsertRefs(ctx, refs); err != nil {
		return summary, fmt.Errorf("store refs for %s: %w", target, err)
	}
	if err := p.deps.Store.MarkStreetScraped(ctx, target, p.now()); err != nil {
		return summary, fmt.Errorf("mark street %s: %w", target, err)
	}
	summary.Streets = 1

	pending, err := p.deps.Store.PendingRefs(ctx)
	if err != nil {
		return summary, err
	}
	detail := p.deps.Details[0]
	for _, ref := range pending {
		if ref.Street != target {
			continue
		}
		if err := p.scrapeParcel(ctx, runID, ref, detail); err != nil {
			summary.ParcelsFailed++
			continue
		}
		summary.Parcels++
	}

	summary.Duration = p.now().Sub(started)
	p.logger.Info("street scraped",
		zap.String("street", target),
		zap.Int("parcels", summary.Parcels),
		zap.Int("failed", summary.ParcelsFailed),
	)
	return summary, nil
}
