// Package remote synchronizes a version-control object graph and its
// references with a blob store and a ledger.
//
// A Repo is one session against a (blob store, ledger) pair. Update drains an
// object stream into the blob store and a ref-update stream into the ledger,
// concurrently, and reports success only once both are fully applied.
package remote

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odvcencio/mango/pkg/blobstore"
	"github.com/odvcencio/mango/pkg/index"
	"github.com/odvcencio/mango/pkg/ledger"
)

// DefaultHead is the reference HEAD resolves to when the ledger holds no
// symbolic HEAD.
const DefaultHead = "refs/heads/master"

// Options configures a Repo. Zero values receive defaults.
type Options struct {
	Logger      *slog.Logger
	DefaultHead string
}

// Repo is one repository session. Its object index is loaded at most once,
// on first use, and owned exclusively by the session.
type Repo struct {
	blobs       blobstore.Store
	ledger      ledger.Ledger
	index       *index.Lazy
	logger      *slog.Logger
	session     string
	defaultHead string
}

// New starts a session over blobs and l.
func New(blobs blobstore.Store, l ledger.Ledger, opts Options) *Repo {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultHead == "" {
		opts.DefaultHead = DefaultHead
	}
	session := uuid.NewString()
	logger := opts.Logger.With("session", session)

	r := &Repo{
		blobs:       blobs,
		ledger:      l,
		logger:      logger,
		session:     session,
		defaultHead: opts.DefaultHead,
	}
	r.index = index.NewLazy(blobs, r.snapshotChain, logger)
	return r
}

// Session returns the session id attached to every log line.
func (r *Repo) Session() string { return r.session }

func (r *Repo) snapshotChain(ctx context.Context) ([]blobstore.Locator, error) {
	raw, err := r.ledger.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	locs := make([]blobstore.Locator, len(raw))
	for i, s := range raw {
		locs[i] = blobstore.Locator(s)
	}
	return locs, nil
}

// Snapshots returns the ledger's snapshot chain, oldest first.
func (r *Repo) Snapshots(ctx context.Context) ([]blobstore.Locator, error) {
	return r.snapshotChain(ctx)
}
