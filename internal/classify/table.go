// Package classify assigns every type expression a place in the
// type-model taxonomy and records the generic instantiations it needs.
package classify

import (
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Resolver resolves a path written in some scope. Generic arguments are
// ignored; the returned object's type carries the canonical argument-free
// path.
type Resolver interface {
	ResolvePath(p syntax.Path) model.ObjectKind
}

// Object classifies ty against r. References and raw pointers are
// transparent: the result describes the referent with Ref set. The
// object's type is the canonical form of ty with references removed.
func Object(ty *syntax.Type, r Resolver) model.ObjectKind {
	if ty == nil {
		return model.TypeOf(unit())
	}
	switch ty.Kind {
	case syntax.RefType, syntax.PtrType:
		o := Object(ty.Elem, r)
		o.Kind.Ref = refMode(ty)
		return o
	case syntax.PathType:
		if ty.QSelf != nil {
			return qualified(ty, r)
		}
		return pathObject(ty.Path, r)
	case syntax.ArrayType:
		elem := Object(ty.Elem, r)
		return structural(model.Array, &syntax.Type{Kind: syntax.ArrayType, Elem: canonical(elem), Len: ty.Len}, elem)
	case syntax.SliceType:
		elem := Object(ty.Elem, r)
		return structural(model.Slice, &syntax.Type{Kind: syntax.SliceType, Elem: canonical(elem)}, elem)
	case syntax.TupleType:
		if len(ty.Elems) == 0 {
			return model.TypeOf(unit())
		}
		elems := make([]model.ObjectKind, len(ty.Elems))
		out := &syntax.Type{Kind: syntax.TupleType}
		for i, e := range ty.Elems {
			elems[i] = Object(e, r)
			out.Elems = append(out.Elems, canonical(elems[i]))
		}
		return structural(model.Tuple, out, elems...)
	case syntax.FnType:
		nested, inputs, output := signature(ty.Inputs, ty.Output, r)
		out := &syntax.Type{Kind: syntax.FnType, Inputs: inputs, Output: output, Abi: ty.Abi, Unsafe: ty.Unsafe}
		return structural(model.FnPointer, out, nested...)
	case syntax.DynType, syntax.ImplType:
		return boundsObject(ty, r)
	}
	return model.UnknownOf(ty)
}

// Canonical returns the canonical type of ty in r.
func Canonical(ty *syntax.Type, r Resolver) *syntax.Type {
	return canonical(Object(ty, r))
}

func canonical(o model.ObjectKind) *syntax.Type {
	if t := o.Type(); t != nil {
		return withRef(t, o.Kind.Ref)
	}
	return syntax.Unit()
}

func withRef(t *syntax.Type, mode model.RefMode) *syntax.Type {
	switch mode {
	case model.ByRef, model.ByRefMut:
		return &syntax.Type{Kind: syntax.RefType, Mutable: mode == model.ByRefMut, Elem: t}
	case model.ByConstPtr, model.ByMutPtr:
		return &syntax.Type{Kind: syntax.PtrType, Mutable: mode == model.ByMutPtr, Elem: t}
	}
	return t
}

func refMode(ty *syntax.Type) model.RefMode {
	switch {
	case ty.Kind == syntax.RefType && ty.Mutable:
		return model.ByRefMut
	case ty.Kind == syntax.RefType:
		return model.ByRef
	case ty.Mutable:
		return model.ByMutPtr
	}
	return model.ByConstPtr
}

func unit() model.TypeModelKind {
	return model.TypeModelKind{Tag: model.Dictionary, Dict: model.DictPrimitive, Model: model.TypeModel{Type: syntax.Unit()}}
}

func structural(tag model.Tag, ty *syntax.Type, nested ...model.ObjectKind) model.ObjectKind {
	k := model.TypeModelKind{Tag: tag, Model: model.TypeModel{Type: ty}}
	for _, n := range nested {
		k.Model.Nested = append(k.Model.Nested, model.NestedArgument{Object: n})
	}
	return model.TypeOf(k)
}

func signature(inputs []*syntax.Type, output *syntax.Type, r Resolver) ([]model.ObjectKind, []*syntax.Type, *syntax.Type) {
	var nested []model.ObjectKind
	var canonInputs []*syntax.Type
	for _, in := range inputs {
		o := Object(in, r)
		nested = append(nested, o)
		canonInputs = append(canonInputs, canonical(o))
	}
	var canonOutput *syntax.Type
	if output != nil && !output.IsUnit() {
		o := Object(output, r)
		nested = append(nested, o)
		canonOutput = canonical(o)
	}
	return nested, canonInputs, canonOutput
}

// pathObject resolves the head of p and classifies the arguments of its
// final segment.
func pathObject(p syntax.Path, r Resolver) model.ObjectKind {
	head := r.ResolvePath(p)
	last := p.Last()
	if last == nil || (!last.Parenthesized && len(last.Args) == 0) {
		return head
	}

	canon := p.ArgLess()
	if t := head.Type(); t != nil {
		if t.Kind != syntax.PathType || t.QSelf != nil {
			return head
		}
		if !t.Path.IsEmpty() {
			canon = t.Path.Clone()
		}
	}
	seg := &canon.Segments[len(canon.Segments)-1]
	seg.Args = nil

	var nested []model.ObjectKind
	if last.Parenthesized {
		var output *syntax.Type
		nested, seg.Inputs, output = signature(last.Inputs, last.Output, r)
		seg.Parenthesized = true
		seg.Output = output
	} else {
		for _, a := range last.Args {
			switch {
			case a.Lifetime != "":
			case a.Type != nil:
				o := Object(a.Type, r)
				if a.Binding == "" {
					nested = append(nested, o)
				}
				seg.Args = append(seg.Args, syntax.GenericArg{Binding: a.Binding, Type: canonical(o)})
			default:
				seg.Args = append(seg.Args, syntax.GenericArg{Const: a.Const})
			}
		}
	}

	head.Kind.Model.Type = syntax.PathOf(canon)
	head.Kind.Model.Nested = nil
	for _, n := range nested {
		head.Kind.Model.Nested = append(head.Kind.Model.Nested, model.NestedArgument{Object: n})
	}
	return head
}

// qualified classifies `<T as Trait>::Assoc` projections.
func qualified(ty *syntax.Type, r Resolver) model.ObjectKind {
	self := Object(ty.QSelf.Type, r)
	out := &syntax.Type{Kind: syntax.PathType, Path: ty.Path.Clone(), QSelf: &syntax.QSelf{Type: canonical(self)}}
	if ty.QSelf.Trait != nil {
		tr := r.ResolvePath(*ty.QSelf.Trait)
		p := ty.QSelf.Trait.Clone()
		if t := tr.Type(); t != nil && t.Kind == syntax.PathType {
			p = t.Path.Clone()
		}
		out.QSelf.Trait = &p
	}
	return structural(model.TraitType, out, self)
}

// boundsObject classifies dyn and impl types. A callable bound makes the
// type a boxed callable; otherwise dyn resolves to its first structural
// trait and impl to Bounds.
func boundsObject(ty *syntax.Type, r Resolver) model.ObjectKind {
	folded := mangle.FoldBounds(ty.Bounds)
	out := &syntax.Type{Kind: ty.Kind}
	var objects []model.ObjectKind
	for _, b := range folded {
		o := pathObject(b.Path, r)
		objects = append(objects, o)
		bp := b.Path
		if t := o.Type(); t != nil && t.Kind == syntax.PathType {
			bp = t.Path
		}
		out.Bounds = append(out.Bounds, syntax.Bound{Path: bp})
	}
	if len(objects) == 0 {
		return model.UnknownOf(ty)
	}
	first := objects[0]
	if first.Kind.IsLambda() {
		first.Kind.Model.Type = out
		return first
	}
	if ty.Kind == syntax.ImplType {
		k := model.TypeModelKind{Tag: model.Bounds, Model: model.TypeModel{Type: out}}
		for _, o := range objects {
			k.Model.Nested = append(k.Model.Nested, model.NestedArgument{Object: o})
		}
		return model.TypeOf(k)
	}
	if first.IsUnknown() {
		first.Kind.Model.Type = out
		return first
	}
	first.Kind.Tag = model.Trait
	first.Kind.Model.Type = out
	for _, o := range objects[1:] {
		first.Kind.Model.Nested = append(first.Kind.Model.Nested, model.NestedArgument{Object: o})
	}
	return first
}
