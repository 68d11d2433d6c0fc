package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/media"
	"github.com/parcelworks/assessor-scraper/internal/progress"
	"github.com/parcelworks/assessor-scraper/internal/publish"
	pubmemory "github.com/parcelworks/assessor-scraper/internal/publish/memory"
	"github.com/parcelworks/assessor-scraper/internal/scraper"
	"github.com/parcelworks/assessor-scraper/internal/storage/memory"
	"github.com/parcelworks/assessor-scraper/internal/store"
)

type fakeStreets struct {
	mu      sync.Mutex
	streets []store.Street
	err     error
	calls   int
}

func (f *fakeStreets) ScrapeAll(context.Context) ([]store.Street, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.streets, f.err
}

type fakeListings struct {
	mu     sync.Mutex
	refs   map[string][]store.ParcelRef
	errFor map[string]error
	calls  []string
}

func (f *fakeListings) ScrapeStreet(_ context.Context, street store.Street) ([]store.ParcelRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, street.Name)
	if err := f.errFor[street.Name]; err != nil {
		return nil, err
	}
	return f.refs[street.Name], nil
}

type fakeDetails struct {
	mu     sync.Mutex
	errFor map[string]error
	calls  []string
}

func (f *fakeDetails) Scrape(_ context.Context, ref store.ParcelRef) (*scraper.ParcelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref.ParcelID)
	if err := f.errFor[ref.ParcelID]; err != nil {
		return nil, err
	}
	return &scraper.ParcelRecord{
		ParcelID:  ref.ParcelID,
		URL:       ref.DetailURL,
		ScrapedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		BasicInfo: scraper.BasicInfo{Location: ref.Address},
		Photos: []scraper.Media{
			{URL: "https://gis.example.gov/photos/" + ref.ParcelID + ".jpg", Type: "building"},
		},
	}, nil
}

type fakeMedia struct {
	mu    sync.Mutex
	stats media.Stats
	err   error
	calls int
}

func (f *fakeMedia) Run(context.Context) (media.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stats, f.err
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) kinds() []progress.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Kind, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	store    *memory.Store
	streets  *fakeStreets
	listings *fakeListings
	details  *fakeDetails
	media    *fakeMedia
	emitter  *captureEmitter
	pub      *pubmemory.Publisher
	pipeline *Pipeline
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		streets: &fakeStreets{streets: []store.Street{
			{Name: "MAIN ST", URL: "https://gis.example.gov/Streets.aspx?Name=MAIN+ST"},
			{Name: "OAK AVE", URL: "https://gis.example.gov/Streets.aspx?Name=OAK+AVE"},
		}},
		listings: &fakeListings{refs: map[string][]store.ParcelRef{
			"MAIN ST": {
				{ParcelID: "101748", Address: "123 MAIN ST", DetailURL: "https://gis.example.gov/Parcel.aspx?pid=101748", Street: "MAIN ST"},
				{ParcelID: "101749", Address: "125 MAIN ST", DetailURL: "https://gis.example.gov/Parcel.aspx?pid=101749", Street: "MAIN ST"},
			},
			"OAK AVE": {
				{ParcelID: "200001", Address: "1 OAK AVE", DetailURL: "https://gis.example.gov/Parcel.aspx?pid=200001", Street: "OAK AVE"},
			},
		}},
		details: &fakeDetails{},
		media:   &fakeMedia{stats: media.Stats{Downloaded: 3}},
		emitter: &captureEmitter{},
		pub:     pubmemory.New(),
	}

	listings := make([]ListingSource, 0, workers)
	details := make([]DetailSource, 0, workers)
	for i := 0; i < workers; i++ {
		listings = append(listings, f.listings)
		details = append(details, f.details)
	}

	f.pipeline = New(Deps{
		Store:     f.store,
		Streets:   f.streets,
		Listings:  listings,
		Details:   details,
		Media:     f.media,
		Tracker:   progress.NewTracker(f.store, zap.NewNop()),
		Emitter:   f.emitter,
		Publisher: f.pub,
		Logger:    zap.NewNop(),
	}, Config{})
	return f
}

func TestPipelineFullRun(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	summary, err := f.pipeline.Run(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Streets)
	assert.Equal(t, 3, summary.Parcels)
	assert.Zero(t, summary.StreetsFailed)
	assert.Zero(t, summary.ParcelsFailed)
	assert.Equal(t, 3, summary.MediaDownloaded)
	assert.NotEmpty(t, summary.RunID)

	count, err := f.store.CountParcels(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	parcel, err := f.store.GetParcel(ctx, "101748")
	require.NoError(t, err)
	assert.Equal(t, "MAIN ST", parcel.Street)
	assert.Equal(t, "123 MAIN ST", parcel.Address)
	assert.Contains(t, string(parcel.Detail), `"pid":"101748"`)

	// One photo asset registered per parcel.
	pendingAssets, err := f.store.PendingAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, pendingAssets, 3)

	// All four stages recorded as completed.
	records, err := f.store.ListProgress(ctx)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.Equal(t, store.StatusCompleted, rec.Status, rec.TaskName)
	}

	// Three parcel events plus the run summary event.
	assert.Len(t, f.pub.ByTopic(publish.TopicParcelScraped), 3)
	require.Len(t, f.pub.ByTopic(publish.TopicRunFinished), 1)

	kinds := f.emitter.kinds()
	assert.Equal(t, progress.KindRunStart, kinds[0])
	assert.Equal(t, progress.KindRunDone, kinds[len(kinds)-1])
}

func TestPipelineResumeSkipsCompletedStages(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, true)
	require.NoError(t, err)

	streetCalls := f.streets.calls
	listingCalls := len(f.listings.calls)
	detailCalls := len(f.details.calls)

	// Second resume run touches nothing: every stage is already complete.
	summary, err := f.pipeline.Run(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, summary.Streets)
	assert.Zero(t, summary.Parcels)
	assert.Equal(t, streetCalls, f.streets.calls)
	assert.Equal(t, listingCalls, len(f.listings.calls))
	assert.Equal(t, detailCalls, len(f.details.calls))
}

func TestPipelineNoResumeRescrapes(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, true)
	require.NoError(t, err)

	// Without resume the street index is rescraped; parcels already stored
	// still skip the detail stage via pending-ref filtering.
	_, err = f.pipeline.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.streets.calls)
	assert.Len(t, f.details.calls, 3)
}

func TestPipelineListingFailureRetriesOnlyFailedStreet(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.listings.errFor = map[string]error{"OAK AVE": errors.New("grid missing")}
	summary, err := f.pipeline.Run(ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage listings")
	assert.Equal(t, 1, summary.StreetsFailed)

	rec, err := f.store.GetProgress(ctx, string(progress.StageListings))
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)

	// The failed street stays unscraped; the resume run retries it alone.
	f.listings.errFor = nil
	f.listings.calls = nil
	_, err = f.pipeline.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"OAK AVE"}, f.listings.calls)
	assert.Equal(t, 1, f.streets.calls)
}

func TestPipelineDetailFailureKeepsSavedParcels(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.details.errFor = map[string]error{"101749": errors.New("timeout")}
	summary, err := f.pipeline.Run(ctx, true)
	require.Error(t, err)
	assert.Equal(t, 2, summary.Parcels)
	assert.Equal(t, 1, summary.ParcelsFailed)

	// Saved parcels survive the failure; only the failed one is pending.
	pending, err := f.store.PendingRefs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "101749", pending[0].ParcelID)

	f.details.errFor = nil
	f.details.calls = nil
	_, err = f.pipeline.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"101749"}, f.details.calls)
}

func TestPipelineMediaFailureFailsStage(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.media.stats = media.Stats{Downloaded: 2, Failed: 1}
	_, err := f.pipeline.Run(ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage media")

	rec, err := f.store.GetProgress(ctx, string(progress.StageMedia))
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
}

func TestPipelineStreetLimit(t *testing.T) {
	f := newFixture(t, 1)
	f.pipeline.cfg.StreetLimit = 1
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, true)
	require.NoError(t, err)
	assert.Len(t, f.listings.calls, 1)
}

func TestPipelineRunStage(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	summary, err := f.pipeline.RunStage(ctx, progress.StageStreets, true)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Streets)
	assert.Equal(t, 1, f.streets.calls)
	assert.Empty(t, f.listings.calls)

	rec, err := f.store.GetProgress(ctx, string(progress.StageStreets))
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)

	// A resumed rerun of the same stage is a no-op.
	summary, err = f.pipeline.RunStage(ctx, progress.StageStreets, true)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Streets)
	assert.Equal(t, 1, f.streets.calls)
}

func TestPipelineRunStageUnknown(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.pipeline.RunStage(context.Background(), progress.Stage("bogus"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestPipelineRunStreet(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.pipeline.RunStage(ctx, progress.StageStreets, true)
	require.NoError(t, err)

	summary, err := f.pipeline.RunStreet(ctx, "main st")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Streets)
	assert.Equal(t, 2, summary.Parcels)
	assert.Equal(t, 0, summary.ParcelsFailed)
	assert.Equal(t, []string{"MAIN ST"}, f.listings.calls)
	assert.ElementsMatch(t, []string{"101748", "101749"}, f.details.calls)

	parcel, err := f.store.GetParcel(ctx, "101748")
	require.NoError(t, err)
	assert.Equal(t, "123 MAIN ST", parcel.Address)

	// OAK AVE was never touched.
	_, err = f.store.GetParcel(ctx, "200001")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPipelineRunStreetUnknown(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.pipeline.RunStreet(context.Background(), "NOWHERE RD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// interruptingStreets cancels the run mid-stage, standing in for an operator
// sending SIGINT while street discovery is underway.
type interruptingStreets struct {
	cancel context.CancelFunc
}

func (s *interruptingStreets) ScrapeAll(ctx context.Context) ([]store.Street, error) {
	s.cancel()
	return nil, ctx.Err()
}

func TestPipelineInterruptLeavesStageInProgress(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupted := &interruptingStreets{cancel: cancel}
	p := New(Deps{
		Store:    f.store,
		Streets:  interrupted,
		Listings: []ListingSource{f.listings},
		Details:  []DetailSource{f.details},
		Media:    f.media,
		Tracker:  progress.NewTracker(f.store, zap.NewNop()),
		Logger:   zap.NewNop(),
	}, Config{})

	_, err := p.Run(ctx, true)
	require.Error(t, err)

	// The interrupt must not be recorded as a stage failure; in_progress is
	// what lets the next resumed run pick the stage back up.
	rec, err := f.store.GetProgress(context.Background(), string(progress.StageStreets))
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, rec.Status)
	assert.Nil(t, rec.ErrorMessage)

	// A genuine stage error on a live context still records failed.
	f2 := newFixture(t, 1)
	f2.streets.err = errors.New("site unreachable")
	_, err = f2.pipeline.Run(context.Background(), true)
	require.Error(t, err)

	rec, err = f2.store.GetProgress(context.Background(), string(progress.StageStreets))
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "site unreachable")
}
