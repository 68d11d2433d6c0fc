package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FacadeConfig controls provider order, request spacing, and validation.
type FacadeConfig struct {
	// ProviderDelays maps provider name to the minimum spacing between
	// requests to that provider. Each provider has its own usage policy,
	// so spacing is per-provider, never shared.
	ProviderDelays map[string]time.Duration
	Bounds         Bounds
}

// Facade tries providers in the configured order and returns the first
// accepted result. Out-of-bounds results and provider misses both fall
// through to the next provider; only denial errors stop the chain.
type Facade struct {
	providers []Provider
	limiters  map[string]*rate.Limiter
	bounds    Bounds
	logger    *zap.Logger
}

// NewFacade builds a Facade over the given providers, tried in slice order.
func NewFacade(cfg FacadeConfig, logger *zap.Logger, providers ...Provider) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiters := make(map[string]*rate.Limiter, len(providers))
	for _, p := range providers {
		delay, ok := cfg.ProviderDelays[p.Name()]
		if !ok || delay <= 0 {
			delay = time.Second
		}
		limiters[p.Name()] = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Facade{
		providers: providers,
		limiters:  limiters,
		bounds:    cfg.Bounds,
		logger:    logger,
	}
}

// Geocode resolves addr via the provider chain. A nil Result with nil error
// means no provider produced an in-bounds match.
func (f *Facade) Geocode(ctx context.Context, addr, city, state string) (*Result, error) {
	for _, p := range f.providers {
		if err := f.limiters[p.Name()].Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", p.Name(), err)
		}

		result, err := p.Geocode(ctx, addr, city, state)
		if err != nil {
			if errors.Is(err, ErrProviderDenied) {
				return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
			}
			f.logger.Warn("geocoding provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("address", addr),
				zap.Error(err),
			)
			continue
		}
		if result == nil {
			f.logger.Debug("no match",
				zap.String("provider", p.Name()),
				zap.String("address", addr),
			)
			continue
		}
		if !f.bounds.Contains(result.Lat, result.Lng) {
			f.logger.Warn("coordinates outside configured bounds, discarding",
				zap.String("provider", p.Name()),
				zap.String("address", addr),
				zap.Float64("lat", result.Lat),
				zap.Float64("lng", result.Lng),
			)
			continue
		}
		return result, nil
	}
	return nil, nil
}
