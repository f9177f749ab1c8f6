package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore is a content-addressed blob store on local disk with a
// 2-character fan-out directory layout: blobs/ab/cdef0123...
type FSStore struct {
	root string
}

// NewFSStore creates an FSStore rooted at the given directory. The blobs/
// subdirectory is created lazily on first write.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

// blobPath returns the filesystem path for a given locator.
func (s *FSStore) blobPath(loc Locator) string {
	return filepath.Join(s.root, "blobs", string(loc[:2]), string(loc[2:]))
}

// Has reports whether the store contains a blob with the given locator.
func (s *FSStore) Has(loc Locator) bool {
	if validateContentLocator(loc) != nil {
		return false
	}
	_, err := os.Stat(s.blobPath(loc))
	return err == nil
}

// Put stores data and returns its locator. Writes are atomic: data is
// written to a temp file and then renamed into place.
func (s *FSStore) Put(ctx context.Context, data []byte) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc := ContentLocator(data)

	// Fast path: already exists.
	if s.Has(loc) {
		return loc, nil
	}

	dir := filepath.Join(s.root, "blobs", string(loc[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blob write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("blob write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("blob write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blob write close: %w", err)
	}

	if err := os.Rename(tmpName, s.blobPath(loc)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blob write rename: %w", err)
	}
	return loc, nil
}

// Get retrieves the blob stored under loc.
func (s *FSStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateContentLocator(loc); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(loc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob read %s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("blob read %s: %w", loc, err)
	}
	return data, nil
}
