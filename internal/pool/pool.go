// Package pool fans per-street work out to a fixed set of workers. A street
// that fails is logged and counted, never fatal: the rest of the run
// continues and the failed street stays unscraped for the next resume.
package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

const defaultWorkers = 4

// Handler processes one street.
type Handler func(ctx context.Context, street store.Street) error

// Stats summarizes one pool run.
type Stats struct {
	Processed int
	Failed    int
}

// Pool runs a Handler over streets with bounded parallelism.
type Pool struct {
	workers int
	logger  *zap.Logger
}

// New builds a Pool with the given worker count.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{workers: workers, logger: logger}
}

// Run processes every street and blocks until all workers drain. On context
// cancellation workers stop picking up new streets; in-flight streets finish
// under the canceled context and count as failures when they error.
func (p *Pool) Run(ctx context.Context, streets []store.Street, handle Handler) Stats {
	jobs := make(chan store.Street)

	var (
		mu    sync.Mutex
		stats Stats
		wg    sync.WaitGroup
	)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for street := range jobs {
				err := handle(ctx, street)
				mu.Lock()
				if err != nil {
					stats.Failed++
				} else {
					stats.Processed++
				}
				mu.Unlock()
				if err != nil {
					p.logger.Warn("street failed",
						zap.Int("worker", id),
						zap.String("street", street.Name),
						zap.Error(err),
					)
				}
			}
		}(i)
	}

feed:
	for _, street := range streets {
		select {
		case jobs <- street:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	p.logger.Info("street pool drained",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
	)
	return stats
}
