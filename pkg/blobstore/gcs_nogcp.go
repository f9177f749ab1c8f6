//go:build !gcp

package blobstore

import (
	"context"
	"fmt"
)

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore reports that GCS support was not compiled in. Build with
// -tags gcp to enable it.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (Store, error) {
	return nil, fmt.Errorf("gcs store: built without gcp support (rebuild with -tags gcp)")
}
