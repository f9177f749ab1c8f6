package blobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// flakyStore fails the first failures calls of each kind with err.
type flakyStore struct {
	mu       sync.Mutex
	next     Store
	failures int
	err      error
	calls    int
}

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) Put(ctx context.Context, data []byte) (Locator, error) {
	if err := f.fail(); err != nil {
		return "", err
	}
	return f.next.Put(ctx, data)
}

func (f *flakyStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.next.Get(ctx, loc)
}

func quietRetry(next Store, attempts int) Store {
	return WithRetry(next, RetryOptions{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	flaky := &flakyStore{next: NewMemStore(), failures: 2, err: errors.New("connection reset")}
	s := quietRetry(flaky, 3)

	loc, err := s.Put(context.Background(), []byte("retry me"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("calls = %d, want 3", flaky.calls)
	}
	if loc != ContentLocator([]byte("retry me")) {
		t.Fatalf("unexpected locator %s", loc)
	}
}

func TestRetryExhaustedReturnsStoreError(t *testing.T) {
	cause := errors.New("service unavailable")
	flaky := &flakyStore{next: NewMemStore(), failures: 10, err: cause}
	s := quietRetry(flaky, 3)

	_, err := s.Put(context.Background(), []byte("never"))
	if !errors.Is(err, ErrBlobStore) {
		t.Fatalf("expected ErrBlobStore, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	var storeErr *Error
	if !errors.As(err, &storeErr) || storeErr.Op != "put" {
		t.Fatalf("expected *Error with op put, got %#v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("calls = %d, want 3", flaky.calls)
	}
}

func TestRetryDoesNotRetryNotFound(t *testing.T) {
	flaky := &flakyStore{next: NewMemStore()}
	s := quietRetry(flaky, 3)

	_, err := s.Get(context.Background(), ContentLocator([]byte("absent")))
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrBlobStore) {
		t.Fatalf("expected wrapped ErrNotFound, got %v", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("calls = %d, want 1", flaky.calls)
	}
}

func TestRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flaky := &flakyStore{next: NewMemStore()}
	s := quietRetry(flaky, 3)

	_, err := s.Put(ctx, []byte("cancelled"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if flaky.calls > 1 {
		t.Fatalf("calls = %d, want at most 1", flaky.calls)
	}
}
