package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parcelworks/assessor-scraper/internal/progress"
)

// PrometheusSink exports scrape progress metrics via Prometheus. It owns all
// collectors for runs, stage lifecycles, and per-stage item outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	stagesRunning prometheus.Gauge
	stageDuration *prometheus.HistogramVec

	itemsProcessed *prometheus.CounterVec
	itemDuration   *prometheus.HistogramVec
	mediaBytes     prometheus.Counter

	tracker *stageTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_completed_total",
			Help: "Total pipeline runs completed partitioned by result.",
		}, []string{"result"}),
		stagesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_stages_running",
			Help: "Current number of running pipeline stages.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_stage_duration_seconds",
			Help:    "Stage duration partitioned by stage and result.",
			Buckets: []float64{1, 10, 60, 300, 1800, 7200, 21600, 86400},
		}, []string{"stage", "result"}),
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_items_processed_total",
			Help: "Items processed partitioned by stage and result.",
		}, []string{"stage", "result"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_item_duration_seconds",
			Help:    "Per-item latency partitioned by stage.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		mediaBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_media_bytes_total",
			Help: "Total bytes downloaded by the media stage.",
		}),
		tracker: newStageTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.stagesRunning,
		s.stageDuration,
		s.itemsProcessed,
		s.itemDuration,
		s.mediaBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindRunStart:
		s.runsStarted.Inc()
	case progress.KindRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
	case progress.KindRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
	case progress.KindStageStart, progress.KindStageDone, progress.KindStageError:
		s.handleStageEvent(evt)
	case progress.KindItemDone, progress.KindItemError:
		s.handleItemEvent(evt)
	}
}

func (s *PrometheusSink) handleStageEvent(evt progress.Event) {
	key := stageKey{run: evt.RunID, stage: evt.Stage}
	switch evt.Kind {
	case progress.KindStageStart:
		if s.tracker.start(key) {
			s.stagesRunning.Inc()
		}
		return
	case progress.KindStageDone:
		s.observeStage(evt, "success")
	case progress.KindStageError:
		s.observeStage(evt, "error")
	}
	if s.tracker.complete(key) {
		s.stagesRunning.Dec()
	}
}

func (s *PrometheusSink) observeStage(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.stageDuration.WithLabelValues(string(evt.Stage), label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleItemEvent(evt progress.Event) {
	result := "success"
	if evt.Kind == progress.KindItemError {
		result = "error"
	}
	s.itemsProcessed.WithLabelValues(string(evt.Stage), result).Inc()
	if evt.Dur > 0 {
		s.itemDuration.WithLabelValues(string(evt.Stage)).Observe(evt.Dur.Seconds())
	}
	if evt.Stage == progress.StageMedia && evt.Bytes > 0 {
		s.mediaBytes.Add(float64(evt.Bytes))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type stageKey struct {
	run   [16]byte
	stage progress.Stage
}

type stageTracker struct {
	mu      sync.Mutex
	running map[stageKey]struct{}
}

func newStageTracker() *stageTracker {
	return &stageTracker{running: make(map[stageKey]struct{})}
}

func (t *stageTracker) start(key stageKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *stageTracker) complete(key stageKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
