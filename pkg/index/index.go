// Package index maps version-control object identifiers to the blob store
// locators holding their records. An Index lives only in memory; it is
// rebuilt by folding the ledger's snapshot chain and persisted by writing a
// new snapshot.
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odvcencio/mango/pkg/blobstore"
	"github.com/odvcencio/mango/pkg/object"
)

// ErrNotFound is returned by Get for an identifier the index does not hold.
var ErrNotFound = errors.New("object not present in index")

// Index is an additive identifier -> locator mapping. It is safe for
// concurrent readers; writes come from a single object track.
type Index struct {
	mu        sync.RWMutex
	entries   map[object.Hash]blobstore.Locator
	anomalies int
	logger    *slog.Logger
}

// New returns an empty index. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		entries: make(map[object.Hash]blobstore.Locator),
		logger:  logger,
	}
}

// Has reports whether id is present.
func (x *Index) Has(id object.Hash) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.entries[id]
	return ok
}

// Get returns the locator stored for id.
func (x *Index) Get(id object.Hash) (blobstore.Locator, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	loc, ok := x.entries[id]
	if !ok {
		return "", fmt.Errorf("object %s: %w", id, ErrNotFound)
	}
	return loc, nil
}

// Put records id -> loc. Re-adding an identical pair is a no-op. Objects
// are immutable, so a different locator for a known id means a hash
// collision or duplicate processing; it is logged and counted, and the
// new locator wins.
func (x *Index) Put(id object.Hash, loc blobstore.Locator) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.putLocked(id, loc)
}

func (x *Index) putLocked(id object.Hash, loc blobstore.Locator) {
	prev, ok := x.entries[id]
	if ok && prev == loc {
		return
	}
	if ok {
		x.anomalies++
		x.logger.Warn("object index overwrite",
			"object", string(id),
			"previous_locator", string(prev),
			"locator", string(loc),
		)
	}
	x.entries[id] = loc
}

// Merge adds every entry of m, in the same way as Put.
func (x *Index) Merge(m map[object.Hash]blobstore.Locator) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, loc := range m {
		x.putLocked(id, loc)
	}
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Anomalies returns how many overwrites with a different locator occurred.
func (x *Index) Anomalies() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.anomalies
}

// Entries returns a copy of the mapping.
func (x *Index) Entries() map[object.Hash]blobstore.Locator {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[object.Hash]blobstore.Locator, len(x.entries))
	for id, loc := range x.entries {
		out[id] = loc
	}
	return out
}
