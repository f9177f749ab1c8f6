package remote

import (
	"context"
	"fmt"

	"github.com/odvcencio/mango/pkg/object"
)

// HasObject reports whether id is in the session's index. Objects stored by
// an update that failed before its snapshot was appended remain visible to
// this session only; a new session sees just the committed snapshot chain.
func (r *Repo) HasObject(ctx context.Context, id object.Hash) (bool, error) {
	idx, err := r.index.Get(ctx)
	if err != nil {
		return false, err
	}
	return idx.Has(id), nil
}

// GetObject fetches and decodes the object stored for id. An id not in the
// index returns an error matching index.ErrNotFound.
func (r *Repo) GetObject(ctx context.Context, id object.Hash) (*object.Object, error) {
	idx, err := r.index.Get(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := idx.Get(id)
	if err != nil {
		return nil, err
	}
	data, err := r.blobs.Get(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", id, err)
	}
	obj, err := object.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("object %s at %s: %w", id, loc, err)
	}
	if got := obj.Hash(); got != id {
		return nil, fmt.Errorf("object %s at %s: %w: record hashes to %s",
			id, loc, object.ErrMalformedRecord, got)
	}
	return obj, nil
}
