package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrRefConflict matches a ref update whose declared old value did not
	// equal the ledger's value. It is never retried: the caller's view is
	// stale.
	ErrRefConflict = errors.New("ref conflict")
	// ErrCancelled matches an update halted by the caller's context.
	ErrCancelled = errors.New("update cancelled")
)

// RefConflictError describes a rejected ref update. Empty values mean the
// reference was declared or found absent.
type RefConflictError struct {
	Name     string
	Declared string
	Actual   string
}

func (e *RefConflictError) Error() string {
	return fmt.Sprintf("ref conflict on %q: declared old %s, ledger has %s",
		e.Name, orNull(e.Declared), orNull(e.Actual))
}

func (e *RefConflictError) Is(target error) bool { return target == ErrRefConflict }

func orNull(v string) string {
	if v == "" {
		return "<null>"
	}
	return v
}
