package storage

import (
	"context"
	"fmt"
	"strings"
)

// OpenArchive connects to the configured bucket, creating it when missing,
// and returns a RawArchive writing under prefix.
// Parameters:
//   - ctx: context for the bucket check.
//   - cfg: endpoint, credentials and bucket; an empty Type is detected from the endpoint.
//   - prefix: key prefix for archived batches.
//
// Returns:
//   - *RawArchive: archive backed by the bucket.
//   - error: non-nil if the client cannot be built or the bucket is unusable.
func OpenArchive(ctx context.Context, cfg *S3Config, prefix string) (*RawArchive, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	store, err := NewS3Storage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
	}
	return NewRawArchive(store, prefix), nil
}

func detectStorageType(endpoint string) StorageType {
	host := normalizeEndpoint(strings.ToLower(endpoint))
	if host == "" || strings.HasSuffix(host, "amazonaws.com") {
		return StorageTypeS3
	}
	if strings.HasSuffix(host, ".r2.cloudflarestorage.com") {
		return StorageTypeR2
	}
	return StorageTypeS3Compatible
}
