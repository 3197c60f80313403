package mangle

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Record is one generic instantiation. Identity is the canonical type;
// attributes from every occurrence are merged.
type Record struct {
	Name  string
	Type  *syntax.Type
	Attrs syntax.Attributes

	// Gates holds the cfg predicates of each gated occurrence. Ungated is
	// set once any occurrence carried none.
	Gates   [][]string
	Ungated bool
}

// Cfg returns the gate the record's wrapper is emitted under, or false
// when it is unconditional. Several distinct occurrence gates combine
// with any(); the predicates of one occurrence combine with all().
func (r *Record) Cfg() (syntax.Attribute, bool) {
	if r.Ungated || len(r.Gates) == 0 {
		return syntax.Attribute{}, false
	}
	preds := make([]string, 0, len(r.Gates))
	for _, g := range r.Gates {
		preds = append(preds, conjunction(g))
	}
	sort.Strings(preds)
	args := preds[0]
	if len(preds) > 1 {
		args = "any(" + strings.Join(preds, ", ") + ")"
	}
	return syntax.Attribute{Path: "cfg", Args: args, HasArgs: true}, true
}

func conjunction(preds []string) string {
	if len(preds) == 1 {
		return preds[0]
	}
	return "all(" + strings.Join(preds, ", ") + ")"
}

// CollisionError reports two distinct types mangling to the same name.
type CollisionError struct {
	Name          string
	Existing, New *syntax.Type
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%s and %s both mangle to %s", e.Existing, e.New, e.Name)
}

func (e *CollisionError) Unwrap() error { return diag.ErrManglingCollision }

// Registry deduplicates generic instantiations across the crate. It is
// safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Add registers ty with the attributes of the occurrence and returns its
// mangled name. The cfg subset of attrs gates the occurrence. Adding a
// type that collides with a structurally different one already present
// fails with a *CollisionError.
func (r *Registry) Add(ty *syntax.Type, attrs syntax.Attributes) (string, error) {
	canonical := ty.StripLifetimes()
	name := Mangle(canonical)

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		rec = &Record{Name: name, Type: canonical}
		r.records[name] = rec
	} else if rec.Type.Key() != canonical.Key() {
		return name, &CollisionError{Name: name, Existing: rec.Type, New: canonical}
	}
	rec.Attrs = rec.Attrs.Merge(attrs)
	gate := attrs.CfgPredicates()
	switch {
	case len(gate) == 0:
		rec.Ungated = true
	case !containsGate(rec.Gates, gate):
		rec.Gates = append(rec.Gates, gate)
	}
	return name, nil
}

func containsGate(gates [][]string, gate []string) bool {
	key := strings.Join(gate, "\x00")
	for _, g := range gates {
		if strings.Join(g, "\x00") == key {
			return true
		}
	}
	return false
}

// Lookup returns the record with the given mangled name.
func (r *Registry) Lookup(name string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	return rec, ok
}

// Contains reports whether ty is registered.
func (r *Registry) Contains(ty *syntax.Type) bool {
	rec, ok := r.Lookup(Mangle(ty))
	return ok && rec.Type.Key() == ty.Key()
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Sorted returns the records ordered by mangled name.
func (r *Registry) Sorted() []*Record {
	r.mu.Lock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
