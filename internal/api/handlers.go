package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

type stageDTO struct {
	Stage       string     `json:"stage"`
	Status      string     `json:"status"`
	ItemsTotal  int        `json:"items_total"`
	ItemsDone   int        `json:"items_done"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func toStageDTO(rec store.ProgressRecord) stageDTO {
	dto := stageDTO{
		Stage:       rec.TaskName,
		Status:      string(rec.Status),
		ItemsTotal:  rec.ItemsTotal,
		ItemsDone:   rec.ItemsDone,
		StartedAt:   rec.StartedAt,
		UpdatedAt:   rec.UpdatedAt,
		CompletedAt: rec.CompletedAt,
	}
	if rec.ErrorMessage != nil {
		dto.Error = *rec.ErrorMessage
	}
	return dto
}

// listProgress handles GET /api/progress.
func (s *Server) listProgress(w http.ResponseWriter, r *http.Request) {
	records, err := s.st.ListProgress(r.Context())
	if err != nil {
		s.logger.Error("list progress failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list progress")
		return
	}
	stages := make([]stageDTO, 0, len(records))
	for _, rec := range records {
		stages = append(stages, toStageDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

// getProgress handles GET /api/progress/{stage}.
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")
	rec, err := s.st.GetProgress(r.Context(), stage)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "stage not found")
		return
	}
	if err != nil {
		s.logger.Error("get progress failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, toStageDTO(rec))
}

// getParcel handles GET /api/parcels/{parcel_id}, returning the stored
// record with its extracted detail inlined.
func (s *Server) getParcel(w http.ResponseWriter, r *http.Request) {
	parcelID := chi.URLParam(r, "parcel_id")
	parcel, err := s.st.GetParcel(r.Context(), parcelID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "parcel not found")
		return
	}
	if err != nil {
		s.logger.Error("get parcel failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load parcel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parcel_id":  parcel.ParcelID,
		"street":     parcel.Street,
		"address":    parcel.Address,
		"scraped_at": parcel.ScrapedAt,
		"detail":     json.RawMessage(parcel.Detail),
	})
}

// getStats handles GET /api/stats.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	streets, err := s.st.ListStreets(ctx)
	if err != nil {
		s.logger.Error("list streets failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	scraped := 0
	for _, st := range streets {
		if st.Scraped {
			scraped++
		}
	}

	parcels, err := s.st.CountParcels(ctx)
	if err != nil {
		s.logger.Error("count parcels failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	pending, err := s.st.PendingAssets(ctx)
	if err != nil {
		s.logger.Error("list pending assets failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"streets_total":   len(streets),
		"streets_scraped": scraped,
		"parcels":         parcels,
		"assets_pending":  len(pending),
	})
}
