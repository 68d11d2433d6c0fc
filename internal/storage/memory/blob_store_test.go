package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.Put(context.Background(), "photos/abc.jpg", "image/jpeg", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if uri != "memory://photos/abc.jpg" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Get("photos/abc.jpg")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
}

func TestBlobStoreExists(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()

	ok, err := store.Exists(ctx, "photos/abc.jpg")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Fatal("expected missing object")
	}

	if _, err := store.Put(ctx, "photos/abc.jpg", "image/jpeg", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	ok, err = store.Exists(ctx, "photos/abc.jpg")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Fatal("expected stored object")
	}
}
