// Package blobstore is the boundary to the content-addressable blob store.
// Blobs are opaque byte strings addressed by the Locator the store returns
// on Put; callers never derive locators themselves.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Locator is an opaque, content-derived key returned by a Store.
type Locator string

// Store puts and gets opaque blobs. Put is idempotent: storing the same
// bytes twice returns the same locator.
type Store interface {
	Put(ctx context.Context, data []byte) (Locator, error)
	Get(ctx context.Context, loc Locator) ([]byte, error)
}

var (
	// ErrNotFound is returned by Get for a locator the store does not hold.
	ErrNotFound = errors.New("blob not found")
	// ErrBlobStore matches every *Error.
	ErrBlobStore = errors.New("blob store error")
)

// Error wraps a failed blob store call once retries are exhausted.
type Error struct {
	Op      string
	Locator Locator
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Locator != "" {
		return fmt.Sprintf("blob store %s %s: %v", e.Op, e.Locator, e.Err)
	}
	return fmt.Sprintf("blob store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrBlobStore
}

// ContentLocator returns the SHA-256 hex digest of data. The built-in
// stores use it as their locator scheme.
func ContentLocator(data []byte) Locator {
	sum := sha256.Sum256(data)
	return Locator(hex.EncodeToString(sum[:]))
}

func validateContentLocator(loc Locator) error {
	s := string(loc)
	if len(s) != 2*sha256.Size {
		return fmt.Errorf("invalid locator %q: length %d, expected %d", s, len(s), 2*sha256.Size)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("invalid locator %q: %w", s, err)
	}
	return nil
}
