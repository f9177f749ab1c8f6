package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/odvcencio/mango/pkg/blobstore"
	"github.com/odvcencio/mango/pkg/config"
)

type closeRecorder struct {
	name  string
	order *[]string
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func TestSessionClosesTrackedResourcesInReverse(t *testing.T) {
	var order []string
	s := &session{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	s.track(closeRecorder{name: "blobstore", order: &order})
	s.track(blobstore.NewMemStore())
	s.track(closeRecorder{name: "ledger", order: &order})

	if len(s.closers) != 2 {
		t.Fatalf("tracked %d closers, want 2", len(s.closers))
	}
	s.Close()
	if len(order) != 2 || order[0] != "ledger" || order[1] != "blobstore" {
		t.Fatalf("close order = %v, want [ledger blobstore]", order)
	}
}

func TestOpenBlobStoreTracksOnlyClosableBackends(t *testing.T) {
	s := &session{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	cfg := config.Default().Blobstore
	cfg.Backend = "memory"

	if _, err := openBlobStore(context.Background(), cfg, s); err != nil {
		t.Fatalf("openBlobStore: %v", err)
	}
	if len(s.closers) != 0 {
		t.Fatalf("memory backend registered %d closers", len(s.closers))
	}
}
