package inventory

import (
	"fmt"
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

var markerPrefixes = []string{"", "ferment_macro::", "ferment::"}

// Mark is a marker attribute found on an item.
type Mark struct {
	Marker Marker
	Type   *syntax.Type
	FFI    *syntax.Type
}

// Marks extracts the marker attributes of an item.
func Marks(attrs syntax.Attributes) ([]Mark, error) {
	var out []Mark
	for _, a := range attrs {
		m, ok := markerOf(a.Path)
		if !ok {
			continue
		}
		mark := Mark{Marker: m}
		switch m {
		case Register:
			ty, err := syntax.ParseType(a.Args)
			if err != nil {
				return nil, fmt.Errorf("register(%s): %w", a.Args, err)
			}
			mark.Type = ty
		case Custom:
			from, to, found := strings.Cut(a.Args, "=>")
			if !found {
				return nil, fmt.Errorf("custom(%s): expected `Type => FfiType`", a.Args)
			}
			var err error
			if mark.Type, err = syntax.ParseType(strings.TrimSpace(from)); err != nil {
				return nil, fmt.Errorf("custom(%s): %w", a.Args, err)
			}
			if mark.FFI, err = syntax.ParseType(strings.TrimSpace(to)); err != nil {
				return nil, fmt.Errorf("custom(%s): %w", a.Args, err)
			}
		}
		out = append(out, mark)
	}
	return out, nil
}

func markerOf(path string) (Marker, bool) {
	for _, prefix := range markerPrefixes {
		name, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(name, "::") {
			continue
		}
		if m, err := ParseMarker(name); err == nil {
			return m, true
		}
	}
	return 0, false
}

// IsMarker reports whether the attribute is a registration marker.
func IsMarker(a syntax.Attribute) bool {
	_, ok := markerOf(a.Path)
	return ok
}

// Collect walks the items of a module and returns the registrations their
// markers declare. module is the canonical path of the module holding
// items (the crate name alone for the crate root). Items declared inside
// function bodies are not nameable and are skipped. Malformed markers are
// reported to bag.
func Collect(crateName string, module syntax.Path, items []*syntax.Item, bag *diag.Bag) []Entry {
	var out []Entry
	collect(crateName, module, items, bag, &out)
	return out
}

func collect(crateName string, module syntax.Path, items []*syntax.Item, bag *diag.Bag, out *[]Entry) {
	for _, it := range items {
		if it.Kind == syntax.ModItem {
			collect(crateName, module.Append(it.Name), it.Items, bag, out)
			continue
		}
		marks, err := Marks(it.Attrs)
		if err != nil {
			bag.Add(diag.Diagnostic{
				Kind:     diag.RegistrationConflict,
				Location: diag.Location{File: it.File, Line: it.Line},
				Subject:  it.Name,
				Message:  err.Error(),
			})
			continue
		}
		for _, m := range marks {
			e := Entry{
				Marker: m.Marker,
				Crate:  crateName,
				Item:   it,
				Type:   m.Type,
				FFI:    m.FFI,
				File:   it.File,
				Line:   it.Line,
			}
			switch it.Kind {
			case syntax.ImplItem:
				e.Path = module
				if m.Marker == Export {
					e.Type = it.SelfType
				}
			default:
				e.Path = module.Append(it.Name)
			}
			*out = append(*out, e)
		}
	}
}

// Validate reports every pair of registrations that cannot both hold:
// an item marked both export and opaque, or a foreign type registered with
// two different conversions.
func Validate(entries []Entry) []diag.Diagnostic {
	var out []diag.Diagnostic
	first := make(map[string]Entry)
	for _, e := range entries {
		if e.Item != nil && e.Item.Kind == syntax.ImplItem {
			continue
		}
		key := e.Subject()
		if e.Marker == Export || e.Marker == Opaque {
			key = "item:" + key
		} else {
			key = "type:" + key
		}
		prev, seen := first[key]
		if !seen {
			first[key] = e
			continue
		}
		if prev.Target() == e.Target() {
			continue
		}
		out = append(out, diag.Diagnostic{
			Kind:     diag.RegistrationConflict,
			Severity: diag.Error,
			Location: e.Location(),
			Subject:  e.Subject(),
			Message:  fmt.Sprintf("registered as %s here and as %s at %s", e.Target(), prev.Target(), prev.Location()),
		})
	}
	return out
}
