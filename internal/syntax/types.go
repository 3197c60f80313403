package syntax

import (
	"strings"
)

// TypeKind discriminates type expressions.
type TypeKind int

const (
	PathType TypeKind = iota
	RefType
	PtrType
	ArrayType
	SliceType
	TupleType
	FnType
	DynType
	ImplType
	NeverType
	InferType
)

var typeKindNames = [...]string{"path", "reference", "pointer", "array", "slice", "tuple", "fn", "dyn", "impl", "never", "infer"}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return "unknown"
}

// QSelf is the qualified-self prefix of `<T as Trait>::Assoc`.
type QSelf struct {
	Type  *Type
	Trait *Path
}

// Bound is one `+`-separated element of a bound list.
type Bound struct {
	Lifetime string
	Maybe    bool
	Path     Path
}

// IsLifetime reports a lifetime bound.
func (b Bound) IsLifetime() bool { return b.Lifetime != "" }

func (b Bound) String() string {
	if b.Lifetime != "" {
		return b.Lifetime
	}
	if b.Maybe {
		return "?" + b.Path.String()
	}
	return b.Path.String()
}

// Type is a parsed type expression.
type Type struct {
	Kind TypeKind

	// PathType
	QSelf *QSelf
	Path  Path

	// RefType, PtrType, ArrayType, SliceType
	Elem     *Type
	Mutable  bool
	Lifetime string
	Len      string

	// TupleType
	Elems []*Type

	// FnType
	Inputs []*Type
	Output *Type
	Abi    string
	Unsafe bool

	// DynType, ImplType
	Bounds []Bound
}

// PathOf builds a path type.
func PathOf(p Path) *Type { return &Type{Kind: PathType, Path: p} }

// Unit is the empty tuple.
func Unit() *Type { return &Type{Kind: TupleType} }

// IsUnit reports `()`.
func (t *Type) IsUnit() bool { return t != nil && t.Kind == TupleType && len(t.Elems) == 0 }

// Clone deep-copies the type. A nil receiver yields nil.
func (t *Type) Clone() *Type {
	if t == nil {
		return nil
	}
	out := *t
	if t.QSelf != nil {
		q := QSelf{Type: t.QSelf.Type.Clone()}
		if t.QSelf.Trait != nil {
			tr := t.QSelf.Trait.Clone()
			q.Trait = &tr
		}
		out.QSelf = &q
	}
	out.Path = t.Path.Clone()
	out.Elem = t.Elem.Clone()
	out.Output = t.Output.Clone()
	out.Elems = cloneTypes(t.Elems)
	out.Inputs = cloneTypes(t.Inputs)
	if t.Bounds != nil {
		out.Bounds = make([]Bound, len(t.Bounds))
		for i, b := range t.Bounds {
			out.Bounds[i] = Bound{Lifetime: b.Lifetime, Maybe: b.Maybe, Path: b.Path.Clone()}
		}
	}
	return &out
}

func cloneTypes(ts []*Type) []*Type {
	if ts == nil {
		return nil
	}
	out := make([]*Type, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

// StripLifetimes returns a copy of t without any lifetime annotations.
func (t *Type) StripLifetimes() *Type {
	if t == nil {
		return nil
	}
	out := &Type{Kind: t.Kind, Mutable: t.Mutable, Len: t.Len, Abi: t.Abi, Unsafe: t.Unsafe}
	if t.QSelf != nil {
		q := QSelf{Type: t.QSelf.Type.StripLifetimes()}
		if t.QSelf.Trait != nil {
			tr := t.QSelf.Trait.StripLifetimes()
			q.Trait = &tr
		}
		out.QSelf = &q
	}
	out.Path = t.Path.StripLifetimes()
	out.Elem = t.Elem.StripLifetimes()
	out.Output = t.Output.StripLifetimes()
	for _, e := range t.Elems {
		out.Elems = append(out.Elems, e.StripLifetimes())
	}
	for _, in := range t.Inputs {
		out.Inputs = append(out.Inputs, in.StripLifetimes())
	}
	for _, b := range t.Bounds {
		if b.Lifetime != "" {
			continue
		}
		out.Bounds = append(out.Bounds, Bound{Maybe: b.Maybe, Path: b.Path.StripLifetimes()})
	}
	return out
}

// Key is the lifetime-free rendering; two types with equal keys are the
// same holder for scope lookups and generic deduplication.
func (t *Type) Key() string {
	return t.StripLifetimes().String()
}

// Equal compares types structurally, ignoring lifetimes.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Key() == other.Key()
}

// Walk visits t and every nested type depth-first. Returning false from fn
// prunes the subtree.
func (t *Type) Walk(fn func(*Type) bool) {
	if t == nil || !fn(t) {
		return
	}
	if t.QSelf != nil {
		t.QSelf.Type.Walk(fn)
	}
	for _, s := range t.Path.Segments {
		for _, a := range s.Args {
			a.Type.Walk(fn)
		}
		for _, in := range s.Inputs {
			in.Walk(fn)
		}
		s.Output.Walk(fn)
	}
	t.Elem.Walk(fn)
	for _, e := range t.Elems {
		e.Walk(fn)
	}
	for _, in := range t.Inputs {
		in.Walk(fn)
	}
	t.Output.Walk(fn)
	for _, b := range t.Bounds {
		for _, s := range b.Path.Segments {
			for _, a := range s.Args {
				a.Type.Walk(fn)
			}
			for _, in := range s.Inputs {
				in.Walk(fn)
			}
			s.Output.Walk(fn)
		}
	}
}

// Core strips references and raw pointers.
func (t *Type) Core() *Type {
	for t != nil && (t.Kind == RefType || t.Kind == PtrType) {
		t = t.Elem
	}
	return t
}

// TraitBounds returns the non-lifetime bounds of a dyn or impl type.
func (t *Type) TraitBounds() []Bound {
	var out []Bound
	for _, b := range t.Bounds {
		if b.Lifetime == "" {
			out = append(out, b)
		}
	}
	return out
}

func (t *Type) String() string {
	if t == nil {
		return "()"
	}
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Type) write(b *strings.Builder) {
	if t == nil {
		b.WriteString("()")
		return
	}
	switch t.Kind {
	case PathType:
		if t.QSelf != nil {
			b.WriteByte('<')
			t.QSelf.Type.write(b)
			if t.QSelf.Trait != nil {
				b.WriteString(" as ")
				t.QSelf.Trait.write(b)
			}
			b.WriteString(">::")
			p := t.Path
			p.Global = false
			p.write(b)
			return
		}
		t.Path.write(b)
	case RefType:
		b.WriteByte('&')
		if t.Lifetime != "" {
			b.WriteString(t.Lifetime)
			b.WriteByte(' ')
		}
		if t.Mutable {
			b.WriteString("mut ")
		}
		t.Elem.write(b)
	case PtrType:
		if t.Mutable {
			b.WriteString("*mut ")
		} else {
			b.WriteString("*const ")
		}
		t.Elem.write(b)
	case ArrayType:
		b.WriteByte('[')
		t.Elem.write(b)
		b.WriteString("; ")
		b.WriteString(t.Len)
		b.WriteByte(']')
	case SliceType:
		b.WriteByte('[')
		t.Elem.write(b)
		b.WriteByte(']')
	case TupleType:
		b.WriteByte('(')
		for i, e := range t.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			e.write(b)
		}
		if len(t.Elems) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case FnType:
		if t.Unsafe {
			b.WriteString("unsafe ")
		}
		if t.Abi != "" {
			b.WriteString(`extern "`)
			b.WriteString(t.Abi)
			b.WriteString(`" `)
		}
		b.WriteString("fn(")
		for i, in := range t.Inputs {
			if i > 0 {
				b.WriteString(", ")
			}
			in.write(b)
		}
		b.WriteByte(')')
		if t.Output != nil {
			b.WriteString(" -> ")
			t.Output.write(b)
		}
	case DynType, ImplType:
		if t.Kind == DynType {
			b.WriteString("dyn ")
		} else {
			b.WriteString("impl ")
		}
		for i, bd := range t.Bounds {
			if i > 0 {
				b.WriteString(" + ")
			}
			b.WriteString(bd.String())
		}
	case NeverType:
		b.WriteByte('!')
	case InferType:
		b.WriteByte('_')
	}
}
