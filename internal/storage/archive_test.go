package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStorage struct {
	objects   map[string][]byte
	uploadErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) EnsureBucket(ctx context.Context) error { return nil }

func (m *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func TestRawArchive_SaveAndLoad(t *testing.T) {
	store := newMemoryStorage()
	archive := NewRawArchive(store, "/raw/")

	batch := []map[string]string{{"id": "v1"}, {"id": "v2"}}
	key, err := archive.Save(context.Background(), "hot-trends", "job-1", batch)
	require.NoError(t, err)
	assert.Equal(t, "raw/hot-trends/job-1.json", key)

	exists, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, exists)

	var loaded []map[string]string
	require.NoError(t, archive.Load(context.Background(), key, &loaded))
	assert.Equal(t, batch, loaded)
}

func TestRawArchive_Exists(t *testing.T) {
	ctx := context.Background()
	archive := NewRawArchive(newMemoryStorage(), "raw")

	key := archive.Key("category", BatchName("job-3", "dance"))
	assert.Equal(t, "raw/category/job-3-dance.json", key)

	ok, err := archive.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	saved, err := archive.Save(ctx, "category", BatchName("job-3", "dance"), []int{1})
	require.NoError(t, err)
	assert.Equal(t, key, saved)

	ok, err = archive.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBatchName(t *testing.T) {
	assert.Equal(t, "job-1", BatchName("job-1", ""))
	assert.Equal(t, "job-1-dance", BatchName("job-1", "dance"))
}

func TestRawArchive_UploadFailure(t *testing.T) {
	store := newMemoryStorage()
	store.uploadErr = errors.New("bucket unreachable")
	archive := NewRawArchive(store, "raw")

	_, err := archive.Save(context.Background(), "category", "job-2", []int{1})
	assert.EqualError(t, err, "bucket unreachable")
}

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"https://acct.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.us-east-1.amazonaws.com", StorageTypeS3},
		{"", StorageTypeS3},
		{"https://s3.eu-west-1.amazonaws.com/bucket", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
		{"http://minio.internal:9000", StorageTypeS3Compatible},
	}
	for _, tc := range tests {
		t.Run(tc.endpoint, func(t *testing.T) {
			assert.Equal(t, tc.want, detectStorageType(tc.endpoint))
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/"))
	assert.Equal(t, "acct.r2.cloudflarestorage.com", normalizeEndpoint("https://acct.r2.cloudflarestorage.com/bucket"))
}
