package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	assert.Equal(t, "assessor-scraper/1.0", f.cfg.UserAgent)
	assert.Equal(t, 30*time.Second, f.cfg.Timeout)

	f = New(Config{UserAgent: "custom", Timeout: time.Second})
	assert.Equal(t, "custom", f.cfg.UserAgent)
	assert.Equal(t, time.Second, f.cfg.Timeout)
}

func TestFetcherFetch(t *testing.T) {
	t.Parallel()

	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent"})
	resp, err := f.Fetch(context.Background(), srv.URL+"/photos/1.jpg")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.ContentType)
	assert.Equal(t, []byte("jpeg-bytes"), resp.Body)
	assert.Equal(t, "test-agent", gotAgent)
}

func TestFetcherFetchNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), srv.URL+"/photos/missing.jpg")
	require.Error(t, err)
}

func TestFetcherFetchCanceled(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}
