package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

func testStreets(n int) []store.Street {
	streets := make([]store.Street, 0, n)
	for i := 0; i < n; i++ {
		streets = append(streets, store.Street{Name: fmt.Sprintf("STREET %d", i)})
	}
	return streets
}

func TestPoolProcessesAll(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []string
	)
	p := New(3, zap.NewNop())
	stats := p.Run(context.Background(), testStreets(10), func(_ context.Context, street store.Street) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, street.Name)
		if street.Name == "STREET 4" {
			return errors.New("page broke")
		}
		return nil
	})

	assert.Equal(t, Stats{Processed: 9, Failed: 1}, stats)
	assert.Len(t, seen, 10)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inflight int
		peak     int
	)
	p := New(2, zap.NewNop())
	p.Run(context.Background(), testStreets(8), func(_ context.Context, _ store.Street) error {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inflight--
		mu.Unlock()
		return nil
	})

	assert.LessOrEqual(t, peak, 2)
	assert.Greater(t, peak, 0)
}

func TestPoolStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var count int
	var mu sync.Mutex

	p := New(1, zap.NewNop())
	stats := p.Run(ctx, testStreets(100), func(_ context.Context, _ store.Street) error {
		mu.Lock()
		count++
		if count == 3 {
			cancel()
		}
		mu.Unlock()
		return nil
	})

	// The feed stops once the context cancels; only the streets already
	// picked up complete.
	assert.Less(t, stats.Processed, 100)
	assert.GreaterOrEqual(t, stats.Processed, 3)
}

func TestPoolDefaultWorkers(t *testing.T) {
	t.Parallel()

	p := New(0, nil)
	assert.Equal(t, defaultWorkers, p.workers)
	stats := p.Run(context.Background(), nil, func(_ context.Context, _ store.Street) error {
		return nil
	})
	assert.Equal(t, Stats{}, stats)
}
