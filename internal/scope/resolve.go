package scope

import (
	"github.com/pankcuf/ferment-sub004/internal/classify"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// target is what a path prefix names: a module to continue in, or an
// object.
type target struct {
	mod   *Node
	obj   model.ObjectKind
	found bool
}

func objectTarget(o model.ObjectKind) target { return target{obj: o, found: true} }

type guardKey struct {
	node *Node
	kind byte
	name string
}

// resolver resolves paths written in one scope. The guard is shared by
// every resolver derived from the same lookup, so import and alias cycles
// terminate.
type resolver struct {
	g     *Graph
	n     *Node
	guard map[guardKey]bool
}

func (g *Graph) resolver(n *Node) *resolver {
	return &resolver{g: g, n: n, guard: make(map[guardKey]bool)}
}

func (r *resolver) at(n *Node) *resolver {
	return &resolver{g: r.g, n: n, guard: r.guard}
}

func (r *resolver) enter(k guardKey) bool {
	if r.guard[k] {
		return false
	}
	r.guard[k] = true
	return true
}

func (r *resolver) leave(k guardKey) { delete(r.guard, k) }

// ResolvePath implements classify.Resolver.
func (r *resolver) ResolvePath(p syntax.Path) model.ObjectKind {
	t := r.path(p, r.n)
	if !t.found || t.mod != nil {
		return model.UnknownOf(syntax.PathOf(plain(p)))
	}
	return t.obj
}

func plain(p syntax.Path) syntax.Path {
	out := p.ArgLess()
	out.Global = false
	return out
}

func (r *resolver) path(p syntax.Path, n *Node) target {
	segs := p.Segments
	if len(segs) == 0 {
		return target{}
	}
	first := segs[0].Ident
	var cur target
	i := 1
	switch {
	case p.Global:
		root, ok := r.g.roots[first]
		if !ok {
			return r.foreign(p)
		}
		cur = target{mod: root, found: true}
	case first == "crate":
		cur = target{mod: r.g.roots[n.Chain.Crate], found: true}
	case first == "self":
		cur = target{mod: n.module(), found: true}
	case first == "super":
		m := n.module()
		for i = 0; i < len(segs) && segs[i].Ident == "super"; i++ {
			if m == nil || m.Parent == nil {
				return target{}
			}
			m = m.Parent.module()
		}
		cur = target{mod: m, found: m != nil}
	case first == "Self":
		return r.selfPath(segs, n)
	default:
		if t, ok := r.name(first, n); ok {
			cur = t
			break
		}
		if root, ok := r.g.roots[first]; ok && len(segs) > 1 {
			cur = target{mod: root, found: true}
			break
		}
		if p.IsStd() || r.g.external[first] {
			return r.foreign(p)
		}
		if len(segs) == 1 {
			return builtin(first, syntax.NewPath(first))
		}
		return target{}
	}

	for ; i < len(segs); i++ {
		name := segs[i].Ident
		switch {
		case !cur.found:
			return target{}
		case cur.mod != nil:
			t, ok := r.local(name, cur.mod, false)
			if !ok {
				return target{}
			}
			cur = t
		default:
			if i != len(segs)-1 {
				return target{}
			}
			return projection(cur.obj, name)
		}
	}
	return cur
}

// foreign resolves paths into std and into crates that are not loaded.
// Standard-library built-ins keep their full path.
func (r *resolver) foreign(p syntax.Path) target {
	path := plain(p)
	if p.IsStd() {
		return builtin(p.LastIdent(), path)
	}
	return objectTarget(model.UnknownOf(syntax.PathOf(path)))
}

func builtin(ident string, path syntax.Path) target {
	k, ok := model.Builtin(ident)
	if !ok {
		return target{}
	}
	k.Model.Type = syntax.PathOf(path)
	return objectTarget(model.TypeOf(k))
}

// name looks an identifier up from n outward, stopping at the enclosing
// module. The match in the highest-priority scope wins; ties go to the
// nearest.
func (r *resolver) name(ident string, n *Node) (target, bool) {
	var best target
	prio := -1
	for c := n; c != nil; c = c.Parent {
		if t, ok := r.local(ident, c, true); ok {
			if p := c.Chain.Kind.Priority(); p > prio {
				best, prio = t, p
			}
		}
		if c.Chain.Kind == model.ModuleScope || c.Chain.Kind == model.CrateRootScope {
			break
		}
	}
	return best, prio >= 0
}

// local looks ident up in the single scope c: generic parameters, then
// items, then imports, then glob imports.
func (r *resolver) local(ident string, c *Node, generics bool) (target, bool) {
	if generics {
		if gen := c.generics(); gen != nil {
			if _, ok := gen.Param(ident); ok {
				return objectTarget(model.TypeOf(model.TypeModelKind{
					Tag:   model.Bounds,
					Model: model.TypeModel{Type: syntax.PathOf(syntax.NewPath(ident)), Generics: gen},
				})), true
			}
		}
	}
	if d, ok := c.defs[ident]; ok {
		return r.def(d), true
	}
	if p, ok := c.imports[ident]; ok {
		k := guardKey{node: c, kind: 'u', name: ident}
		if r.enter(k) {
			t := r.path(p, c)
			r.leave(k)
			if t.found {
				return t, true
			}
		}
	}
	for _, glob := range c.globs {
		if t, ok := r.glob(c, glob, ident); ok {
			return t, true
		}
	}
	return target{}, false
}

func (r *resolver) glob(c *Node, glob syntax.Path, ident string) (target, bool) {
	if glob.IsStd() {
		t := builtin(ident, plain(glob).Append(ident))
		return t, t.found
	}
	k := guardKey{node: c, kind: 'g', name: glob.String() + "::" + ident}
	if !r.enter(k) {
		return target{}, false
	}
	defer r.leave(k)
	m := r.path(glob, c)
	if m.mod == nil {
		return target{}, false
	}
	return r.local(ident, m.mod, false)
}

func (r *resolver) def(d *Def) target {
	switch d.Item.Kind {
	case syntax.ModItem:
		return target{mod: d.Node, found: true}
	case syntax.TypeAliasItem:
		return objectTarget(r.alias(d))
	case syntax.FnItem:
		return target{}
	}
	return objectTarget(d.object)
}

// alias resolves an alias to an Object carrying the target as its only
// nested argument.
func (r *resolver) alias(d *Def) model.ObjectKind {
	k := guardKey{node: d.Parent, kind: 'a', name: d.Name}
	if !r.enter(k) {
		return model.UnknownOf(syntax.PathOf(d.Path))
	}
	defer r.leave(k)
	aliased := classify.Object(d.Item.Type, r.at(d.Parent))
	return model.ItemOf(model.TypeModelKind{
		Tag: model.Object,
		Model: model.TypeModel{
			Type:     syntax.PathOf(d.Path),
			Generics: &d.Item.Generics,
			Nested:   []model.NestedArgument{{Object: aliased}},
		},
	}, d.Item, d.Parent.Chain)
}

// selfPath resolves `Self` and `Self::Assoc`.
func (r *resolver) selfPath(segs []syntax.Segment, n *Node) target {
	var c *Node
	for c = n; c != nil && !c.Chain.Kind.HasSelf(); c = c.Parent {
	}
	if c == nil {
		return target{}
	}
	if len(segs) > 2 {
		return target{}
	}
	if c.Chain.Kind != model.ImplScope {
		if len(segs) == 2 {
			return projection(c.Chain.Self.Object, segs[1].Ident)
		}
		return objectTarget(c.Chain.Self.Object)
	}

	k := guardKey{node: c, kind: 's'}
	if !r.enter(k) {
		return target{}
	}
	defer r.leave(k)
	if len(segs) == 2 {
		if it, ok := c.assoc[segs[1].Ident]; ok && it.Type != nil {
			return objectTarget(classify.Object(it.Type, r.at(c)))
		}
		return projection(classify.Object(c.selfType, r.at(c)), segs[1].Ident)
	}
	return objectTarget(classify.Object(c.selfType, r.at(c)))
}

// projection names an associated type of a trait or generic parameter.
func projection(o model.ObjectKind, name string) target {
	switch o.Kind.Tag {
	case model.Trait, model.Bounds, model.Object:
	default:
		return target{}
	}
	base := syntax.NewPath("Self")
	if t := o.Type(); t != nil && t.Kind == syntax.PathType {
		base = t.Path.ArgLess()
	}
	return objectTarget(model.TypeOf(model.TypeModelKind{
		Tag:   model.TraitType,
		Model: model.TypeModel{Type: syntax.PathOf(base.Append(name))},
	}))
}
