package ledger

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// WithRateLimit returns a Ledger whose writes wait on limiter before
// reaching next. Reads pass straight through. If next is a Swapper, so is
// the result.
func WithRateLimit(next Ledger, limiter *rate.Limiter) Ledger {
	if limiter == nil {
		return next
	}
	m := &meteredLedger{next: next, limiter: limiter}
	if s, ok := next.(Swapper); ok {
		return &meteredSwapper{meteredLedger: m, swapper: s}
	}
	return m
}

type meteredLedger struct {
	next    Ledger
	limiter *rate.Limiter
}

func (m *meteredLedger) wait(ctx context.Context) error {
	if err := m.limiter.Wait(ctx); err != nil {
		// Wait reports a deadline it cannot meet without wrapping ctx.Err().
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ledger rate limit: %w", err)
	}
	return nil
}

func (m *meteredLedger) GetReference(ctx context.Context, name string) (string, error) {
	return m.next.GetReference(ctx, name)
}

func (m *meteredLedger) SetReference(ctx context.Context, name, value string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.next.SetReference(ctx, name, value)
}

func (m *meteredLedger) DeleteReference(ctx context.Context, name string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.next.DeleteReference(ctx, name)
}

func (m *meteredLedger) ListReferenceNames(ctx context.Context) ([]string, error) {
	return m.next.ListReferenceNames(ctx)
}

func (m *meteredLedger) AppendSnapshot(ctx context.Context, locator string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.next.AppendSnapshot(ctx, locator)
}

func (m *meteredLedger) ListSnapshots(ctx context.Context) ([]string, error) {
	return m.next.ListSnapshots(ctx)
}

type meteredSwapper struct {
	*meteredLedger
	swapper Swapper
}

func (m *meteredSwapper) CompareAndSwapReference(ctx context.Context, name, expected, next string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.swapper.CompareAndSwapReference(ctx, name, expected, next)
}
