// Package syntax holds the canonical representation of Rust paths, type
// expressions, attributes and items, plus a parser for type-level syntax.
package syntax

import (
	"strings"
)

// GenericArg is one entry of an angle-bracketed argument list.
// Exactly one of Lifetime, Type or Const is set. Binding names an
// associated-type binding (`Item = T`), in which case Type holds T.
type GenericArg struct {
	Lifetime string
	Binding  string
	Type     *Type
	Const    string
}

// Segment is a path segment: an identifier with optional generic arguments
// or a parenthesized signature (`Fn(A, B) -> R`).
type Segment struct {
	Ident         string
	Args          []GenericArg
	Parenthesized bool
	Inputs        []*Type
	Output        *Type
}

// Path is a possibly global sequence of segments.
type Path struct {
	Global   bool
	Segments []Segment
}

// NewPath builds an argument-free path from identifiers.
func NewPath(idents ...string) Path {
	p := Path{Segments: make([]Segment, 0, len(idents))}
	for _, id := range idents {
		p.Segments = append(p.Segments, Segment{Ident: id})
	}
	return p
}

// IsEmpty reports whether the path has no segments.
func (p Path) IsEmpty() bool { return len(p.Segments) == 0 }

// LastIdent returns the identifier of the final segment.
func (p Path) LastIdent() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1].Ident
}

// FirstIdent returns the identifier of the first segment.
func (p Path) FirstIdent() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[0].Ident
}

// Last returns a pointer to the final segment, or nil for an empty path.
func (p Path) Last() *Segment {
	if len(p.Segments) == 0 {
		return nil
	}
	return &p.Segments[len(p.Segments)-1]
}

// Idents returns the segment identifiers without arguments.
func (p Path) Idents() []string {
	out := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		out[i] = s.Ident
	}
	return out
}

// ArgLess returns a copy of p with the final segment's arguments removed.
func (p Path) ArgLess() Path {
	out := p.Clone()
	if last := out.Last(); last != nil {
		last.Args = nil
		last.Parenthesized = false
		last.Inputs = nil
		last.Output = nil
	}
	return out
}

// Join appends other's segments to p.
func (p Path) Join(other Path) Path {
	out := p.Clone()
	for _, s := range other.Segments {
		out.Segments = append(out.Segments, s.clone())
	}
	return out
}

// Append returns p extended by plain identifiers.
func (p Path) Append(idents ...string) Path {
	return p.Join(NewPath(idents...))
}

// Parent returns p without its final segment.
func (p Path) Parent() Path {
	if len(p.Segments) == 0 {
		return p
	}
	out := p.Clone()
	out.Segments = out.Segments[:len(out.Segments)-1]
	return out
}

// Clone deep-copies the path.
func (p Path) Clone() Path {
	out := Path{Global: p.Global, Segments: make([]Segment, len(p.Segments))}
	for i, s := range p.Segments {
		out.Segments[i] = s.clone()
	}
	return out
}

func (s Segment) clone() Segment {
	out := Segment{Ident: s.Ident, Parenthesized: s.Parenthesized}
	if s.Args != nil {
		out.Args = make([]GenericArg, len(s.Args))
		for i, a := range s.Args {
			out.Args[i] = GenericArg{Lifetime: a.Lifetime, Binding: a.Binding, Const: a.Const, Type: a.Type.Clone()}
		}
	}
	if s.Inputs != nil {
		out.Inputs = make([]*Type, len(s.Inputs))
		for i, t := range s.Inputs {
			out.Inputs[i] = t.Clone()
		}
	}
	out.Output = s.Output.Clone()
	return out
}

// TypeArgs returns the type arguments of the segment, skipping lifetimes,
// bindings and const arguments.
func (s Segment) TypeArgs() []*Type {
	var out []*Type
	for _, a := range s.Args {
		if a.Type != nil && a.Binding == "" {
			out = append(out, a.Type)
		}
	}
	return out
}

// Equal compares paths structurally, ignoring lifetimes.
func (p Path) Equal(other Path) bool {
	return p.Key() == other.Key()
}

// Key is the lifetime-free canonical rendering used for hashing.
func (p Path) Key() string {
	return p.StripLifetimes().String()
}

// StripLifetimes removes lifetime arguments at every depth.
func (p Path) StripLifetimes() Path {
	out := Path{Global: p.Global, Segments: make([]Segment, len(p.Segments))}
	for i, s := range p.Segments {
		ns := Segment{Ident: s.Ident, Parenthesized: s.Parenthesized}
		for _, a := range s.Args {
			if a.Lifetime != "" {
				continue
			}
			ns.Args = append(ns.Args, GenericArg{Binding: a.Binding, Const: a.Const, Type: a.Type.StripLifetimes()})
		}
		for _, in := range s.Inputs {
			ns.Inputs = append(ns.Inputs, in.StripLifetimes())
		}
		ns.Output = s.Output.StripLifetimes()
		out.Segments[i] = ns
	}
	return out
}

func (p Path) String() string {
	var b strings.Builder
	p.write(&b)
	return b.String()
}

func (p Path) write(b *strings.Builder) {
	if p.Global {
		b.WriteString("::")
	}
	for i, s := range p.Segments {
		if i > 0 {
			b.WriteString("::")
		}
		s.write(b)
	}
}

func (s Segment) write(b *strings.Builder) {
	b.WriteString(s.Ident)
	if s.Parenthesized {
		b.WriteByte('(')
		for i, in := range s.Inputs {
			if i > 0 {
				b.WriteString(", ")
			}
			in.write(b)
		}
		b.WriteByte(')')
		if s.Output != nil {
			b.WriteString(" -> ")
			s.Output.write(b)
		}
		return
	}
	if len(s.Args) == 0 {
		return
	}
	b.WriteByte('<')
	for i, a := range s.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		switch {
		case a.Lifetime != "":
			b.WriteString(a.Lifetime)
		case a.Binding != "":
			b.WriteString(a.Binding)
			b.WriteString(" = ")
			a.Type.write(b)
		case a.Const != "":
			b.WriteString(a.Const)
		default:
			a.Type.write(b)
		}
	}
	b.WriteByte('>')
}

var primitives = map[string]bool{
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
	"f32": true, "f64": true, "bool": true, "char": true,
}

var specialGenerics = map[string]bool{
	"Vec": true, "BTreeMap": true, "HashMap": true, "IndexMap": true,
	"BTreeSet": true, "HashSet": true, "IndexSet": true, "Result": true,
}

var smartPointers = map[string]bool{
	"Box": true, "Arc": true, "Rc": true, "Cow": true, "Cell": true, "RefCell": true,
	"Mutex": true, "RwLock": true, "OnceLock": true, "UnsafeCell": true, "Pin": true,
}

// IsPrimitiveIdent reports whether ident names a scalar primitive.
func IsPrimitiveIdent(ident string) bool { return primitives[ident] }

// IsPrimitive reports whether the last segment names a scalar primitive.
func (p Path) IsPrimitive() bool { return primitives[p.LastIdent()] }

// IsString reports whether the last segment is String or str.
func (p Path) IsString() bool {
	id := p.LastIdent()
	return id == "String" || id == "str"
}

// IsSpecialGeneric reports collections, maps and Result.
func (p Path) IsSpecialGeneric() bool { return specialGenerics[p.LastIdent()] }

// IsMap reports the map family.
func (p Path) IsMap() bool {
	switch p.LastIdent() {
	case "BTreeMap", "HashMap", "IndexMap":
		return true
	}
	return false
}

// IsResult reports Result.
func (p Path) IsResult() bool { return p.LastIdent() == "Result" }

// Is128Digit reports i128 and u128.
func (p Path) Is128Digit() bool {
	id := p.LastIdent()
	return id == "i128" || id == "u128"
}

// IsOptional reports Option.
func (p Path) IsOptional() bool { return p.LastIdent() == "Option" }

// IsVoid reports c_void.
func (p Path) IsVoid() bool { return p.LastIdent() == "c_void" }

// IsSmartPointer reports the pointer and cell family.
func (p Path) IsSmartPointer() bool { return smartPointers[p.LastIdent()] }

// IsCrateRelative reports paths beginning with crate, self or super.
func (p Path) IsCrateRelative() bool {
	switch p.FirstIdent() {
	case "crate", "self", "super":
		return true
	}
	return false
}

// IsStd reports paths rooted at std, core or alloc.
func (p Path) IsStd() bool {
	switch p.FirstIdent() {
	case "std", "core", "alloc":
		return true
	}
	return false
}
