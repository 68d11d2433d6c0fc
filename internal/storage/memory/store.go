package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

// Store is an in-memory store.Store for development and testing.
type Store struct {
	mu       sync.RWMutex
	streets  map[string]store.Street
	refs     map[string]store.ParcelRef
	parcels  map[string]store.Parcel
	assets   map[string]store.MediaAsset
	progress map[string]store.ProgressRecord
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		streets:  make(map[string]store.Street),
		refs:     make(map[string]store.ParcelRef),
		parcels:  make(map[string]store.Parcel),
		assets:   make(map[string]store.MediaAsset),
		progress: make(map[string]store.ProgressRecord),
	}
}

// Close implements store.Store.
func (s *Store) Close() {}

// UpsertStreets inserts or refreshes streets, preserving scraped flags.
func (s *Store) UpsertStreets(_ context.Context, streets []store.Street) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range streets {
		if existing, ok := s.streets[st.Name]; ok {
			existing.URL = st.URL
			existing.PropertyCount = st.PropertyCount
			s.streets[st.Name] = existing
			continue
		}
		s.streets[st.Name] = st
	}
	return nil
}

// ListStreets returns every street ordered by name.
func (s *Store) ListStreets(_ context.Context) ([]store.Street, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streetsWhere(func(store.Street) bool { return true }), nil
}

// UnscrapedStreets returns streets not yet finished by the listing stage.
func (s *Store) UnscrapedStreets(_ context.Context) ([]store.Street, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streetsWhere(func(st store.Street) bool { return !st.Scraped }), nil
}

func (s *Store) streetsWhere(keep func(store.Street) bool) []store.Street {
	out := make([]store.Street, 0, len(s.streets))
	for _, st := range s.streets {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarkStreetScraped flips the scraped flag for one street.
func (s *Store) MarkStreetScraped(_ context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streets[name]
	if !ok {
		return store.ErrNotFound
	}
	st.Scraped = true
	ts := at
	st.ScrapedAt = &ts
	s.streets[name] = st
	return nil
}

// UpsertRefs inserts refs, first write wins per parcel ID.
func (s *Store) UpsertRefs(_ context.Context, refs []store.ParcelRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		if _, exists := s.refs[ref.ParcelID]; exists {
			continue
		}
		s.refs[ref.ParcelID] = ref
	}
	return nil
}

// PendingRefs returns refs with no scraped parcel record yet.
func (s *Store) PendingRefs(_ context.Context) ([]store.ParcelRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ParcelRef
	for id, ref := range s.refs {
		if _, scraped := s.parcels[id]; !scraped {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParcelID < out[j].ParcelID })
	return out, nil
}

// SaveParcel upserts a scraped parcel record.
func (s *Store) SaveParcel(_ context.Context, p store.Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parcels[p.ParcelID] = p
	return nil
}

// GetParcel loads one parcel or returns store.ErrNotFound.
func (s *Store) GetParcel(_ context.Context, parcelID string) (store.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parcels[parcelID]
	if !ok {
		return store.Parcel{}, store.ErrNotFound
	}
	return p, nil
}

// CountParcels returns the number of scraped parcel records.
func (s *Store) CountParcels(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.parcels)), nil
}

func assetKey(parcelID, url string) string {
	return parcelID + "\x00" + url
}

// UpsertAssets registers assets, keeping existing outcomes.
func (s *Store) UpsertAssets(_ context.Context, assets []store.MediaAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assets {
		key := assetKey(a.ParcelID, a.URL)
		if _, exists := s.assets[key]; exists {
			continue
		}
		s.assets[key] = a
	}
	return nil
}

// PendingAssets returns assets not yet downloaded, failures included.
func (s *Store) PendingAssets(_ context.Context) ([]store.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.MediaAsset
	for _, a := range s.assets {
		if !a.Downloaded {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParcelID != out[j].ParcelID {
			return out[i].ParcelID < out[j].ParcelID
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

// MarkAssetDownloaded records a completed transfer and clears LastError.
func (s *Store) MarkAssetDownloaded(_ context.Context, parcelID, url, path string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assetKey(parcelID, url)
	a, ok := s.assets[key]
	if !ok {
		return store.ErrNotFound
	}
	a.Downloaded = true
	ts := at
	a.DownloadedAt = &ts
	a.Path = path
	a.LastError = ""
	s.assets[key] = a
	return nil
}

// MarkAssetFailed records a failed transfer without blocking retries.
func (s *Store) MarkAssetFailed(_ context.Context, parcelID, url, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assetKey(parcelID, url)
	a, ok := s.assets[key]
	if !ok {
		return store.ErrNotFound
	}
	a.LastError = message
	s.assets[key] = a
	return nil
}

// GetProgress loads one stage's record or returns store.ErrNotFound.
func (s *Store) GetProgress(_ context.Context, taskName string) (store.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.progress[taskName]
	if !ok {
		return store.ProgressRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// ListProgress returns every stage record ordered by task name.
func (s *Store) ListProgress(_ context.Context) ([]store.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.ProgressRecord, 0, len(s.progress))
	for _, rec := range s.progress {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskName < out[j].TaskName })
	return out, nil
}

// StartProgress upserts the stage into in_progress, keeping the original
// started_at across restarts.
func (s *Store) StartProgress(_ context.Context, taskName string, itemsTotal int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.progress[taskName]
	if !ok {
		rec = store.ProgressRecord{TaskName: taskName, StartedAt: at}
	}
	rec.Status = store.StatusInProgress
	rec.ItemsTotal = itemsTotal
	rec.UpdatedAt = at
	rec.CompletedAt = nil
	rec.ErrorMessage = nil
	s.progress[taskName] = rec
	return nil
}

// AdvanceProgress updates the done counter.
func (s *Store) AdvanceProgress(_ context.Context, taskName string, itemsDone int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.progress[taskName]
	if !ok {
		return store.ErrNotFound
	}
	rec.ItemsDone = itemsDone
	rec.UpdatedAt = at
	s.progress[taskName] = rec
	return nil
}

// CompleteProgress marks the stage completed.
func (s *Store) CompleteProgress(_ context.Context, taskName string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.progress[taskName]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = store.StatusCompleted
	ts := at
	rec.CompletedAt = &ts
	rec.UpdatedAt = at
	rec.ErrorMessage = nil
	s.progress[taskName] = rec
	return nil
}

// FailProgress marks the stage failed with a reason.
func (s *Store) FailProgress(_ context.Context, taskName string, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.progress[taskName]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = store.StatusFailed
	rec.ErrorMessage = &message
	rec.UpdatedAt = at
	s.progress[taskName] = rec
	return nil
}

// ResetProgress drops every stage record.
func (s *Store) ResetProgress(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = make(map[string]store.ProgressRecord)
	return nil
}
