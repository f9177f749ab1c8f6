package remote

import (
	"context"
	"fmt"
	"strings"
)

// HeadRef is the symbolic reference reported by Symrefs.
const HeadRef = "HEAD"

// symrefPrefix marks a ledger value that names another reference.
const symrefPrefix = "ref: "

// Ref is one reference as enumerated from the ledger.
type Ref struct {
	Name  string
	Value string
}

// RefIter walks the references captured when it was created. It is not a
// live view and cannot be restarted.
type RefIter struct {
	refs []Ref
	pos  int
}

// Next returns the next reference, or false once the set is exhausted.
func (it *RefIter) Next() (Ref, bool) {
	if it.pos >= len(it.refs) {
		return Ref{}, false
	}
	ref := it.refs[it.pos]
	it.pos++
	return ref, true
}

// Refs captures the ledger's current direct references, in name order.
// Symbolic references, HEAD included, are reported by Symrefs instead.
func (r *Repo) Refs(ctx context.Context) (*RefIter, error) {
	names, err := r.ledger.ListReferenceNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	refs := make([]Ref, 0, len(names))
	for _, name := range names {
		if name == HeadRef {
			continue
		}
		value, err := r.ledger.GetReference(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read ref %q: %w", name, err)
		}
		// Deleted between listing and reading, or symbolic.
		if value == "" || strings.HasPrefix(value, symrefPrefix) {
			continue
		}
		refs = append(refs, Ref{Name: name, Value: value})
	}
	return &RefIter{refs: refs}, nil
}

// AllRefs returns every direct reference as a name -> value map.
func (r *Repo) AllRefs(ctx context.Context) (map[string]string, error) {
	it, err := r.Refs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(it.refs))
	for ref, ok := it.Next(); ok; ref, ok = it.Next() {
		out[ref.Name] = ref.Value
	}
	return out, nil
}

// Symrefs maps each symbolic reference to its target. A symbolic reference
// is one whose ledger value is "ref: <target>". HEAD is always reported,
// falling back to the session's default head when the ledger holds no
// symbolic HEAD.
func (r *Repo) Symrefs(ctx context.Context) (map[string]string, error) {
	names, err := r.ledger.ListReferenceNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	out := make(map[string]string)
	for _, name := range names {
		value, err := r.ledger.GetReference(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read ref %q: %w", name, err)
		}
		if t, ok := strings.CutPrefix(value, symrefPrefix); ok && strings.TrimSpace(t) != "" {
			out[name] = strings.TrimSpace(t)
		}
	}
	if _, ok := out[HeadRef]; !ok {
		out[HeadRef] = r.defaultHead
	}
	return out, nil
}

// SymbolicValue returns the ledger value that makes a reference point at
// target, for use as the New side of a RefUpdate on HEAD.
func SymbolicValue(target string) string {
	return symrefPrefix + target
}
