package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/mango/pkg/blobstore"
	"github.com/odvcencio/mango/pkg/object"
)

// ErrSnapshotLoad matches any failure to fetch or decode a snapshot in the
// chain.
var ErrSnapshotLoad = errors.New("snapshot load failed")

// SnapshotLoadError names the snapshot that broke the chain.
type SnapshotLoadError struct {
	Locator blobstore.Locator
	Err     error
}

func (e *SnapshotLoadError) Error() string {
	return fmt.Sprintf("load snapshot %s: %v", e.Locator, e.Err)
}

func (e *SnapshotLoadError) Unwrap() error { return e.Err }

func (e *SnapshotLoadError) Is(target error) bool { return target == ErrSnapshotLoad }

// loadConcurrency bounds parallel snapshot fetches.
const loadConcurrency = 8

// Load rebuilds an index by folding the snapshots at locators, in order,
// into an empty mapping. Fetches run in parallel; the fold is sequential so
// later snapshots win. Any failure aborts the load and no partial index is
// returned.
func Load(ctx context.Context, store blobstore.Store, locators []blobstore.Locator, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	decoded := make([]map[object.Hash]blobstore.Locator, len(locators))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, loc := range locators {
		g.Go(func() error {
			data, err := store.Get(gctx, loc)
			if err != nil {
				return &SnapshotLoadError{Locator: loc, Err: err}
			}
			m, err := DecodeSnapshot(data)
			if err != nil {
				return &SnapshotLoadError{Locator: loc, Err: err}
			}
			decoded[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := New(logger)
	for _, m := range decoded {
		idx.Merge(m)
	}
	logger.Debug("object index loaded", "snapshots", len(locators), "objects", idx.Len())
	return idx, nil
}

// ChainFunc returns the ordered snapshot chain to load.
type ChainFunc func(ctx context.Context) ([]blobstore.Locator, error)

// Lazy loads an index at most once per session. Concurrent callers share a
// single in-flight load. Only a successful result is kept; after a failure
// the next caller retries.
type Lazy struct {
	store  blobstore.Store
	chain  ChainFunc
	logger *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	index *Index
}

// NewLazy returns a Lazy that reads the chain with chain and the snapshots
// from store.
func NewLazy(store blobstore.Store, chain ChainFunc, logger *slog.Logger) *Lazy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lazy{store: store, chain: chain, logger: logger}
}

// Get returns the session's index, loading it on first use.
func (l *Lazy) Get(ctx context.Context) (*Index, error) {
	if idx := l.Loaded(); idx != nil {
		return idx, nil
	}
	v, err, _ := l.group.Do("index", func() (any, error) {
		if idx := l.Loaded(); idx != nil {
			return idx, nil
		}
		locators, err := l.chain(ctx)
		if err != nil {
			return nil, fmt.Errorf("read snapshot chain: %w", err)
		}
		idx, err := Load(ctx, l.store, locators, l.logger)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.index = idx
		l.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// Loaded returns the memoized index, or nil if none has loaded yet.
func (l *Lazy) Loaded() *Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index
}
