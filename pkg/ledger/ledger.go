// Package ledger defines the transactional key-value service that holds
// references and the snapshot chain, with in-memory, SQL and Redis
// backends.
//
// Reference values are strings. The empty string means "absent": getting a
// missing reference returns "", and compare-and-swap treats "" as the
// expectation that no reference exists or as a request to delete it.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrCASMismatch is returned when a compare-and-swap finds a value other
// than the expected one.
var ErrCASMismatch = errors.New("ref compare-and-swap mismatch")

// MismatchError carries the value observed by a failed compare-and-swap.
type MismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s: expected %s, found %s",
		ErrCASMismatch, e.Name, display(e.Expected), display(e.Actual))
}

func (e *MismatchError) Is(target error) bool { return target == ErrCASMismatch }

func display(v string) string {
	if v == "" {
		return "<null>"
	}
	return v
}

// Ledger is the reference and snapshot-chain store.
type Ledger interface {
	// GetReference returns the value of name, or "" if it does not exist.
	GetReference(ctx context.Context, name string) (string, error)
	SetReference(ctx context.Context, name, value string) error
	DeleteReference(ctx context.Context, name string) error
	// ListReferenceNames returns every reference name in lexical order.
	ListReferenceNames(ctx context.Context) ([]string, error)

	// AppendSnapshot adds locator to the end of the snapshot chain.
	AppendSnapshot(ctx context.Context, locator string) error
	// ListSnapshots returns the chain oldest first.
	ListSnapshots(ctx context.Context) ([]string, error)
}

// Swapper is implemented by ledgers that can compare-and-swap a reference
// atomically. Expected and next use "" for absent; a next of "" deletes.
type Swapper interface {
	CompareAndSwapReference(ctx context.Context, name, expected, next string) error
}

// CompareAndSwap applies name: expected -> next on l. It uses the ledger's
// atomic swap when available, and otherwise falls back to a read, compare,
// then write, which is only safe with a single writer per reference.
func CompareAndSwap(ctx context.Context, l Ledger, name, expected, next string) error {
	if s, ok := l.(Swapper); ok {
		return s.CompareAndSwapReference(ctx, name, expected, next)
	}

	actual, err := l.GetReference(ctx, name)
	if err != nil {
		return fmt.Errorf("read ref %q: %w", name, err)
	}
	if actual != expected {
		return &MismatchError{Name: name, Expected: expected, Actual: actual}
	}
	if next == "" {
		if expected == "" {
			return nil
		}
		return l.DeleteReference(ctx, name)
	}
	return l.SetReference(ctx, name, next)
}
