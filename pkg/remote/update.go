package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/mango/pkg/blobstore"
	"github.com/odvcencio/mango/pkg/index"
	"github.com/odvcencio/mango/pkg/ledger"
	"github.com/odvcencio/mango/pkg/object"
)

// RefUpdate is one requested reference transition. A nil Old means the
// reference must not exist; a nil New deletes it. A pointer to "" is the
// same as nil.
type RefUpdate struct {
	Name string
	Old  *object.Hash
	New  *object.Hash
}

// Update drains both streams, each on its own track, and returns nil only
// once every object is stored, the new snapshot is appended to the ledger
// and every ref update is applied. The first terminal error on either track
// stops the other and is returned. A nil source is an empty track; with no
// object source no snapshot is written.
func (r *Repo) Update(ctx context.Context, refs RefUpdateSource, objects ObjectSource) error {
	g, gctx := errgroup.WithContext(ctx)
	if objects != nil {
		g.Go(func() error { return r.objectTrack(gctx, objects) })
	}
	if refs != nil {
		g.Go(func() error { return r.refTrack(gctx, refs) })
	}

	err := g.Wait()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		r.logger.Info("update cancelled", "cause", ctxErr)
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}

func (r *Repo) objectTrack(ctx context.Context, src ObjectSource) error {
	idx, err := r.index.Get(ctx)
	if err != nil {
		return err
	}

	stored := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read object stream: %w", err)
		}

		id, loc, err := r.storeObject(ctx, item)
		if err != nil {
			return err
		}
		idx.Put(id, loc)
		stored++
		r.logger.Debug("object stored", "object", string(id), "locator", string(loc))
	}

	snap, err := r.writeSnapshot(ctx, idx)
	if err != nil {
		return err
	}
	r.logger.Info("object track complete", "objects", stored, "indexed", idx.Len(), "snapshot", string(snap))
	return nil
}

func (r *Repo) storeObject(ctx context.Context, item *IncomingObject) (object.Hash, blobstore.Locator, error) {
	if item == nil {
		return "", "", fmt.Errorf("read object stream: nil object")
	}
	if item.Length < 0 {
		return "", "", fmt.Errorf("%s object: negative length %d", item.Type, item.Length)
	}

	var payload []byte
	if item.Body != nil {
		var err error
		payload, err = io.ReadAll(io.LimitReader(ctxReader{ctx: ctx, r: item.Body}, item.Length+1))
		if err != nil {
			return "", "", fmt.Errorf("read %s object body: %w", item.Type, err)
		}
	}
	if int64(len(payload)) != item.Length {
		return "", "", fmt.Errorf("%s object: declared length %d, read at least %d bytes: %w",
			item.Type, item.Length, len(payload), object.ErrLengthMismatch)
	}

	obj := &object.Object{Type: item.Type, Length: item.Length, Payload: payload}
	record, err := object.EncodeRecord(obj)
	if err != nil {
		return "", "", err
	}
	id := obj.Hash()
	loc, err := r.blobs.Put(ctx, record)
	if err != nil {
		return "", "", fmt.Errorf("store object %s: %w", id, err)
	}
	return id, loc, nil
}

func (r *Repo) writeSnapshot(ctx context.Context, idx *index.Index) (blobstore.Locator, error) {
	data, err := index.EncodeSnapshot(idx.Entries())
	if err != nil {
		return "", err
	}
	loc, err := r.blobs.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	if err := r.ledger.AppendSnapshot(ctx, string(loc)); err != nil {
		return "", fmt.Errorf("append snapshot %s: %w", loc, err)
	}
	return loc, nil
}

func (r *Repo) refTrack(ctx context.Context, src RefUpdateSource) error {
	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		u, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read ref-update stream: %w", err)
		}
		if err := r.applyRefUpdate(ctx, u); err != nil {
			return err
		}
		applied++
	}
	r.logger.Info("ref track complete", "updates", applied)
	return nil
}

func (r *Repo) applyRefUpdate(ctx context.Context, u RefUpdate) error {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return fmt.Errorf("ref update: name is required")
	}
	declared, next := hashValue(u.Old), hashValue(u.New)

	err := ledger.CompareAndSwap(ctx, r.ledger, name, declared, next)
	var mismatch *ledger.MismatchError
	if errors.As(err, &mismatch) {
		return &RefConflictError{Name: name, Declared: declared, Actual: mismatch.Actual}
	}
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	r.logger.Debug("ref updated", "ref", name, "old", orNull(declared), "new", orNull(next))
	return nil
}

func hashValue(h *object.Hash) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(string(*h))
}
