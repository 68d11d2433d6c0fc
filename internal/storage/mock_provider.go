// Package storage defines the interface for a blob storage provider.
package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of the BlobStore interface for testing.
type MockBlobStore struct {
	mock.Mock
}

// Put is the mock implementation of the Put method.
func (m *MockBlobStore) Put(ctx context.Context, path, contentType string, data io.Reader) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// Exists is the mock implementation of the Exists method.
func (m *MockBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1) //nolint:wrapcheck
}
