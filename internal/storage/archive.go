package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// RawArchive writes raw extraction batches to object storage as JSON documents,
// keyed by job type and job ID, so a run can be inspected or replayed later.
type RawArchive struct {
	store  ObjectStorage
	prefix string
}

// NewRawArchive creates an archive rooted at prefix inside the configured bucket.
func NewRawArchive(store ObjectStorage, prefix string) *RawArchive {
	return &RawArchive{store: store, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key used for a job's raw batch.
func (a *RawArchive) Key(jobType, jobID string) string {
	return path.Join(a.prefix, jobType, jobID+".json")
}

// BatchName names the archived batch of a job. Category jobs store one batch
// per category.
func BatchName(jobID, category string) string {
	if category == "" {
		return jobID
	}
	return jobID + "-" + category
}

// Exists reports whether a batch was archived under key.
func (a *RawArchive) Exists(ctx context.Context, key string) (bool, error) {
	return a.store.Exists(ctx, key)
}

// Save marshals payload and uploads it under the job's key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobType: job type used as key segment.
//   - jobID: job ID used as object name.
//   - payload: JSON-serializable batch.
//
// Returns:
//   - string: object key written.
//   - error: non-nil if marshaling or upload fails.
func (a *RawArchive) Save(ctx context.Context, jobType, jobID string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal raw batch: %w", err)
	}

	key := a.Key(jobType, jobID)
	if err := a.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// Load downloads the document stored at key and decodes it into out.
func (a *RawArchive) Load(ctx context.Context, key string, out interface{}) error {
	reader, err := a.store.Download(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return fmt.Errorf("failed to decode raw batch %s: %w", key, err)
	}
	return nil
}
