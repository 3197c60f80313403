// Package inventory holds the registrations that drive emission: items
// marked for export or opaque emission, and foreign types registered with
// an explicit conversion.
package inventory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Marker is a registration kind.
type Marker int

const (
	Export Marker = iota
	Opaque
	Register
	Custom
)

var markerNames = [...]string{"export", "opaque", "register", "custom"}

func (m Marker) String() string {
	if int(m) < len(markerNames) {
		return markerNames[m]
	}
	return "unknown"
}

// ParseMarker maps a marker name to its Marker.
func ParseMarker(s string) (Marker, error) {
	for i, n := range markerNames {
		if n == s {
			return Marker(i), nil
		}
	}
	return 0, fmt.Errorf("unknown marker %q", s)
}

// Entry is one registration.
//
// Path is the canonical path of the annotated item (crate name first). For
// Register, Type is the registered foreign type and Path is the wrapper that
// converts it. For Custom, Type is the foreign type and FFI its
// replacement.
type Entry struct {
	Marker Marker
	Crate  string
	Path   syntax.Path
	Item   *syntax.Item
	Type   *syntax.Type
	FFI    *syntax.Type
	File   string
	Line   int
}

// Location returns the entry's source position.
func (e Entry) Location() diag.Location {
	return diag.Location{File: e.File, Line: e.Line}
}

// Subject is the identity conflicts are detected on: the item path for
// export and opaque, the foreign type otherwise.
func (e Entry) Subject() string {
	switch e.Marker {
	case Register, Custom:
		if e.Type != nil {
			return e.Type.Key()
		}
	}
	return e.Path.Key()
}

// Target describes what the subject maps to, used when comparing two
// registrations of the same subject.
func (e Entry) Target() string {
	switch e.Marker {
	case Register:
		return "register:" + e.Path.Key()
	case Custom:
		return "custom:" + e.FFI.Key()
	}
	return e.Marker.String()
}

func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Marker.String())
	b.WriteByte(' ')
	switch e.Marker {
	case Register:
		fmt.Fprintf(&b, "%s via %s", e.Type, e.Path)
	case Custom:
		fmt.Fprintf(&b, "%s => %s", e.Type, e.FFI)
	default:
		b.WriteString(e.Path.String())
	}
	return b.String()
}

// Cell is an append-only registration store shared by concurrent
// producers. Take moves the contents out, leaving the cell empty.
type Cell struct {
	mu      sync.Mutex
	entries []Entry
}

// Submit appends entries.
func (c *Cell) Submit(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
}

// Len returns the number of pending entries.
func (c *Cell) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Take returns every submitted entry sorted by file, line and path, and
// empties the cell.
func (c *Cell) Take() []Entry {
	c.mu.Lock()
	out := c.entries
	c.entries = nil
	c.mu.Unlock()
	Sort(out)
	return out
}

// Sort orders entries by file, line, marker and path.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Marker != b.Marker {
			return a.Marker < b.Marker
		}
		return a.Subject() < b.Subject()
	})
}

// Index is a read-only view over validated entries.
type Index struct {
	entries  []Entry
	exported map[string]Entry
	opaque   map[string]Entry
	foreign  map[string]Entry
}

// NewIndex builds an index. Duplicate registrations keep the first entry;
// call Validate first to reject conflicting ones.
func NewIndex(entries []Entry) *Index {
	idx := &Index{
		entries:  entries,
		exported: make(map[string]Entry),
		opaque:   make(map[string]Entry),
		foreign:  make(map[string]Entry),
	}
	for _, e := range entries {
		var m map[string]Entry
		switch e.Marker {
		case Export:
			m = idx.exported
		case Opaque:
			m = idx.opaque
		default:
			m = idx.foreign
		}
		if _, dup := m[e.Subject()]; !dup {
			m[e.Subject()] = e
		}
	}
	return idx
}

// Entries returns every indexed entry in order.
func (x *Index) Entries() []Entry { return x.entries }

// Exported reports whether the item at path is marked for export.
func (x *Index) Exported(path syntax.Path) (Entry, bool) {
	e, ok := x.exported[path.Key()]
	return e, ok
}

// Opaque reports whether the item at path is marked opaque.
func (x *Index) Opaque(path syntax.Path) bool {
	_, ok := x.opaque[path.Key()]
	return ok
}

// Foreign returns the register or custom entry for a foreign type.
func (x *Index) Foreign(ty *syntax.Type) (Entry, bool) {
	e, ok := x.foreign[ty.Key()]
	return e, ok
}

// ByMarker returns the entries with marker m in order.
func (x *Index) ByMarker(m Marker) []Entry {
	var out []Entry
	for _, e := range x.entries {
		if e.Marker == m {
			out = append(out, e)
		}
	}
	return out
}
