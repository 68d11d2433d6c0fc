// Package storage defines the interface for a blob storage provider.
// This abstraction keeps the media downloader independent of a specific
// backend (Google Cloud Storage or the local filesystem).
package storage

import (
	"context"
	"io"
)

// BlobStore is the common interface for media artifact storage. Exists backs
// the downloader's idempotency check, so implementations must answer it
// without fetching object content.
type BlobStore interface {
	// Put writes data under path and returns the backend URI of the object.
	Put(ctx context.Context, path, contentType string, data io.Reader) (string, error)
	// Exists reports whether an object is already stored under path.
	Exists(ctx context.Context, path string) (bool, error)
}
