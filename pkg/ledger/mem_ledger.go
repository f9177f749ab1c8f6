package ledger

import (
	"context"
	"slices"
	"sync"
)

// MemLedger is an in-process Ledger. It implements Swapper.
type MemLedger struct {
	mu        sync.Mutex
	refs      map[string]string
	snapshots []string
	journal   []JournalEntry
	signer    Signer
}

// NewMemLedger returns an empty ledger. signer may be nil.
func NewMemLedger(signer Signer) *MemLedger {
	return &MemLedger{refs: make(map[string]string), signer: signer}
}

func (m *MemLedger) GetReference(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[name], nil
}

func (m *MemLedger) SetReference(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(name, value)
}

func (m *MemLedger) DeleteReference(ctx context.Context, name string) error {
	return m.SetReference(ctx, name, "")
}

func (m *MemLedger) CompareAndSwapReference(ctx context.Context, name, expected, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if actual := m.refs[name]; actual != expected {
		return &MismatchError{Name: name, Expected: expected, Actual: actual}
	}
	if expected == "" && next == "" {
		return nil
	}
	return m.writeLocked(name, next)
}

func (m *MemLedger) writeLocked(name, value string) error {
	entry, err := signEntry(m.signer, journalFor(name, value))
	if err != nil {
		return err
	}
	if value == "" {
		delete(m.refs, name)
	} else {
		m.refs[name] = value
	}
	m.journal = append(m.journal, entry)
	return nil
}

func (m *MemLedger) ListReferenceNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.refs))
	for name := range m.refs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemLedger) AppendSnapshot(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := signEntry(m.signer, JournalEntry{Op: OpSnapshot, Value: locator})
	if err != nil {
		return err
	}
	m.snapshots = append(m.snapshots, locator)
	m.journal = append(m.journal, entry)
	return nil
}

func (m *MemLedger) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.snapshots), nil
}

// Journal returns a copy of every write recorded so far.
func (m *MemLedger) Journal() []JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.journal)
}
