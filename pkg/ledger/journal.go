package ledger

import "fmt"

// Journal operations.
const (
	OpSet      = "set"
	OpDelete   = "delete"
	OpSnapshot = "snapshot"
)

// JournalEntry records one ledger write. Signature is empty when the
// ledger has no signer.
type JournalEntry struct {
	Op        string `json:"op"`
	Name      string `json:"name,omitempty"`
	Value     string `json:"value,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Payload is the byte string a signer signs for this entry.
func (e JournalEntry) Payload() []byte {
	return []byte(fmt.Sprintf("mango-ledger-v1\nop %s\nname %s\nvalue %s\n", e.Op, e.Name, e.Value))
}

// Signer signs journal payloads.
type Signer interface {
	Sign(payload []byte) (string, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(payload []byte) (string, error)

func (f SignerFunc) Sign(payload []byte) (string, error) { return f(payload) }

func signEntry(s Signer, e JournalEntry) (JournalEntry, error) {
	if s == nil {
		return e, nil
	}
	sig, err := s.Sign(e.Payload())
	if err != nil {
		return e, fmt.Errorf("sign journal entry: %w", err)
	}
	e.Signature = sig
	return e, nil
}

// journalFor returns the entry describing a reference write, where value
// "" means delete.
func journalFor(name, value string) JournalEntry {
	if value == "" {
		return JournalEntry{Op: OpDelete, Name: name}
	}
	return JournalEntry{Op: OpSet, Name: name, Value: value}
}
