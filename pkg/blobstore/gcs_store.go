//go:build gcp

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// gcsBucket is the slice of a GCS bucket the store uses. Errors are the
// storage package's own, so storage.ErrObjectNotExist passes through.
type gcsBucket interface {
	Attrs(ctx context.Context, key string) error
	Write(ctx context.Context, key string, data []byte) error
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)
	Close() error
}

type clientBucket struct {
	client *storage.Client
	name   string
}

func (b clientBucket) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.name).Object(key)
}

func (b clientBucket) Attrs(ctx context.Context, key string) error {
	_, err := b.object(key).Attrs(ctx)
	return err
}

func (b clientBucket) Write(ctx context.Context, key string, data []byte) error {
	w := b.object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func (b clientBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.object(key).NewReader(ctx)
}

func (b clientBucket) Close() error { return b.client.Close() }

// GCSStore implements Store using Google Cloud Storage.
type GCSStore struct {
	bucket gcsBucket
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates a new GCS-backed blob store using application
// default credentials. The caller closes it.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs store: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs store: create client: %w", err)
	}
	return &GCSStore{bucket: clientBucket{client: client, name: cfg.Bucket}, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) key(loc Locator) string {
	return s.prefix + string(loc) + ".blob"
}

// Close releases the storage client.
func (s *GCSStore) Close() error { return s.bucket.Close() }

// Put persists data to GCS and returns its locator. Existing blobs are not
// rewritten.
func (s *GCSStore) Put(ctx context.Context, data []byte) (Locator, error) {
	loc := ContentLocator(data)
	key := s.key(loc)
	if err := s.bucket.Attrs(ctx, key); err == nil {
		return loc, nil
	}
	if err := s.bucket.Write(ctx, key, data); err != nil {
		return "", fmt.Errorf("gcs put %s: %w", loc, err)
	}
	return loc, nil
}

// Get retrieves a blob from GCS by locator.
func (s *GCSStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := validateContentLocator(loc); err != nil {
		return nil, err
	}
	r, err := s.bucket.NewReader(ctx, s.key(loc))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gcs get %s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("gcs get %s: %w", loc, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs get %s: read: %w", loc, err)
	}
	return data, nil
}
