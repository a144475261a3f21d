package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object store operations used by the raw extraction archive.
type ObjectStorage interface {
	// EnsureBucket creates the target bucket if it does not exist yet.
	EnsureBucket(ctx context.Context) error

	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
