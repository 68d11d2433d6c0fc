package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelworks/assessor-scraper/internal/config"
	"github.com/parcelworks/assessor-scraper/internal/geocode"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = "memory"
	cfg.Publish.Backend = "memory"
	cfg.Logging.Development = false
	return cfg
}

func TestBuildMemoryBackends(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.NotNil(t, a.Store())
	assert.NotNil(t, a.Tracker())
	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.blobs)
	assert.NotNil(t, a.publisher)
	assert.NotNil(t, a.hub)
	assert.NotNil(t, a.apiServer)
	assert.Nil(t, a.pipe)
}

func TestBuildNoPublisher(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Publish.Backend = "none"

	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.publisher)
}

func TestBuildGeocoder(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Geocoding.Providers = []string{"census", "nominatim", "bogus"}
	cfg.Geocoding.DelaySeconds = 2

	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)

	geocoder := a.buildGeocoder()
	require.NotNil(t, geocoder)
	_, ok := geocoder.(*geocode.Facade)
	assert.True(t, ok)
}

func TestBuildGeocoderDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Geocoding.Providers = nil

	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.buildGeocoder())
}

func TestCloseIsSafeTwice(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t))
	require.NoError(t, err)

	a.Close(ctx)
	done := make(chan struct{})
	go func() {
		a.Close(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second close hung")
	}
}
