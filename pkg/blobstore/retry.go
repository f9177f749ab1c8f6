package blobstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryOptions configures WithRetry. Zero-value fields receive defaults
// (3 attempts, 200ms initial interval).
type RetryOptions struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Logger          *slog.Logger
}

// WithRetry returns a Store that retries failed calls with exponential
// backoff. Missing blobs and context cancellation are not retried. A call
// that still fails is reported as an *Error.
func WithRetry(next Store, opts RetryOptions) Store {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &retryStore{next: next, opts: opts}
}

type retryStore struct {
	next Store
	opts RetryOptions
}

func (s *retryStore) Put(ctx context.Context, data []byte) (Locator, error) {
	loc, err := backoff.Retry(ctx, func() (Locator, error) {
		loc, err := s.next.Put(ctx, data)
		if err != nil {
			return "", permanentIfFinal(ctx, err)
		}
		return loc, nil
	}, s.retryOptions("put", "")...)
	if err != nil {
		return "", wrapStoreError("put", "", err)
	}
	return loc, nil
}

func (s *retryStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		data, err := s.next.Get(ctx, loc)
		if err != nil {
			return nil, permanentIfFinal(ctx, err)
		}
		return data, nil
	}, s.retryOptions("get", loc)...)
	if err != nil {
		return nil, wrapStoreError("get", loc, err)
	}
	return data, nil
}

func (s *retryStore) retryOptions(op string, loc Locator) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.opts.Logger.Warn("blob store call failed, retrying",
				"op", op,
				"locator", string(loc),
				"retry_in", next,
				"error", err,
			)
		}),
	}
}

// permanentIfFinal stops the retry loop for errors another attempt cannot fix.
func permanentIfFinal(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	if errors.Is(err, ErrNotFound) {
		return backoff.Permanent(err)
	}
	return err
}

func wrapStoreError(op string, loc Locator, err error) error {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return err
	}
	return &Error{Op: op, Locator: loc, Err: err}
}
