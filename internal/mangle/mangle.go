// Package mangle synthesizes identifiers for type expressions and keeps the
// crate-wide registry of generic instantiations.
package mangle

import (
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Mangle returns the identifier for ty. Structurally equal types produce
// the same identifier; lifetimes, references and punctuation never
// appear in it.
func Mangle(ty *syntax.Type) string {
	var m mangler
	m.typ(ty)
	return m.String()
}

// Path mangles a path on its own.
func Path(p syntax.Path) string {
	var m mangler
	m.path(p)
	return m.String()
}

type mangler struct {
	parts []string
}

func (m *mangler) String() string {
	out := strings.Join(m.parts, "_")
	if out == "" {
		return "Unit"
	}
	return out
}

func (m *mangler) add(parts ...string) {
	for _, p := range parts {
		if p = sanitize(p); p != "" {
			m.parts = append(m.parts, p)
		}
	}
}

func (m *mangler) typ(t *syntax.Type) {
	if t == nil {
		m.add("Unit")
		return
	}
	switch t.Kind {
	case syntax.PathType:
		if t.QSelf != nil {
			m.typ(t.QSelf.Type)
			if t.QSelf.Trait != nil {
				m.add("as")
				m.path(*t.QSelf.Trait)
			}
		}
		m.path(t.Path)
	case syntax.RefType, syntax.PtrType:
		m.typ(t.Elem)
	case syntax.ArrayType:
		m.add("Arr")
		m.typ(t.Elem)
		m.add(t.Len)
	case syntax.SliceType:
		m.add("Slice")
		m.typ(t.Elem)
	case syntax.TupleType:
		if len(t.Elems) == 0 {
			m.add("Unit")
			return
		}
		m.add("Tuple")
		for _, e := range t.Elems {
			m.typ(e)
		}
	case syntax.FnType:
		m.signature(t.Inputs, t.Output)
	case syntax.DynType, syntax.ImplType:
		if t.Kind == syntax.DynType {
			m.add("dyn", "trait")
		} else {
			m.add("impl", "trait")
		}
		for _, b := range FoldBounds(t.Bounds) {
			m.path(b.Path)
		}
	case syntax.NeverType:
		m.add("Never")
	default:
		m.add("Infer")
	}
}

func (m *mangler) signature(inputs []*syntax.Type, output *syntax.Type) {
	m.add("ARGS")
	for _, in := range inputs {
		m.typ(in)
	}
	if output != nil && !output.IsUnit() {
		m.add("RTRN")
		m.typ(output)
	}
}

func (m *mangler) path(p syntax.Path) {
	for _, s := range p.Segments {
		m.segment(s)
	}
}

func (m *mangler) segment(s syntax.Segment) {
	ident := s.Ident
	if s.Parenthesized {
		m.add(ident)
		m.signature(s.Inputs, s.Output)
		return
	}
	args := s.TypeArgs()
	switch {
	case isMap(ident) && len(args) == 2:
		m.add("Map", "keys")
		m.typ(args[0])
		m.add("values")
		m.typ(args[1])
	case ident == "Result" && len(args) == 2:
		m.add("Result", "ok")
		m.typ(args[0])
		m.add("err")
		m.typ(args[1])
	default:
		if isMap(ident) {
			ident = "Map"
		}
		m.add(ident)
		for _, a := range s.Args {
			switch {
			case a.Lifetime != "":
			case a.Binding != "":
				m.add(a.Binding)
				m.typ(a.Type)
			case a.Const != "":
				m.add(a.Const)
			default:
				m.typ(a.Type)
			}
		}
	}
}

func isMap(ident string) bool {
	return ident == "BTreeMap" || ident == "HashMap" || ident == "IndexMap"
}

// FoldBounds returns the bounds that carry structure: lifetimes, `?Sized`
// style relaxations and marker traits are dropped. When nothing remains
// the first trait bound is kept so the result is never empty for a
// non-empty trait list.
func FoldBounds(bounds []syntax.Bound) []syntax.Bound {
	var out []syntax.Bound
	var first *syntax.Bound
	for i, b := range bounds {
		if b.IsLifetime() || b.Maybe {
			continue
		}
		if first == nil {
			first = &bounds[i]
		}
		if model.IsMarkerTrait(b.Path.LastIdent()) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 && first != nil {
		out = append(out, *first)
	}
	return out
}

// sanitize keeps identifier characters only. Raw identifiers lose their
// prefix; const expressions keep their digits and names.
func sanitize(s string) string {
	s = strings.TrimPrefix(s, "r#")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}
