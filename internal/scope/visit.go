package scope

import (
	"github.com/pankcuf/ferment-sub004/internal/classify"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

var selfType = syntax.PathOf(syntax.NewPath("Self"))

// visit declares items depth-first. Imports are recorded first since their
// position in a container does not affect what they bind.
func (g *Graph) visit(n *Node, items []*syntax.Item) {
	for _, it := range items {
		if it.Kind == syntax.UseItem && it.Use != nil {
			g.use(n, it.Use)
		}
	}
	for _, it := range items {
		g.item(n, it)
	}
}

func (g *Graph) use(n *Node, tree *syntax.UseTree) {
	for _, e := range tree.Expand() {
		if e.Glob {
			n.globs = append(n.globs, e.Path)
			continue
		}
		n.imports[e.Name] = e.Path
	}
}

func (g *Graph) item(n *Node, it *syntax.Item) {
	switch it.Kind {
	case syntax.ModItem:
		node := g.open(n, it, model.ModuleScope, n.Chain.Self.Path.Append(it.Name))
		g.define(n, it, node)
		g.visit(node, it.Items)

	case syntax.StructItem, syntax.EnumItem:
		node := g.open(n, it, model.ObjectScope, n.Chain.Self.Path.Append(it.Name))
		d := g.define(n, it, node)
		d.object = model.ItemOf(model.TypeModelKind{
			Tag:   model.Object,
			Model: model.TypeModel{Type: syntax.PathOf(d.Path), Generics: &it.Generics},
		}, it, node.Chain)
		g.self(node, d.object)
		for _, f := range it.Fields {
			g.record(node, f.Type)
		}
		for _, v := range it.Variants {
			for _, f := range v.Fields {
				g.record(node, f.Type)
			}
		}

	case syntax.TraitItem:
		node := g.open(n, it, model.TraitScope, n.Chain.Self.Path.Append(it.Name))
		d := g.define(n, it, node)
		d.object = model.ItemOf(model.TypeModelKind{
			Tag:   model.Trait,
			Model: model.TypeModel{Type: syntax.PathOf(d.Path), Generics: &it.Generics},
			Trait: model.NewTraitModel(d.Path, it),
		}, it, node.Chain)
		g.self(node, d.object)
		for _, b := range it.Bounds {
			if !b.IsLifetime() && !b.Maybe {
				g.record(node, syntax.PathOf(b.Path))
			}
		}
		for _, child := range it.Items {
			switch child.Kind {
			case syntax.AssocTypeItem:
				node.assoc[child.Name] = child
			case syntax.FnItem:
				g.fn(node, child)
			}
		}

	case syntax.ImplItem:
		if it.SelfType == nil {
			return
		}
		node := g.open(n, it, model.ImplScope, n.Chain.Self.Path)
		node.selfType = it.SelfType
		g.placeImpl(node)
		g.record(node, it.SelfType)
		if it.Trait != nil {
			g.record(node, syntax.PathOf(*it.Trait))
		}
		for _, child := range it.Items {
			switch child.Kind {
			case syntax.AssocTypeItem:
				node.assoc[child.Name] = child
				if child.Type != nil {
					g.record(node, child.Type)
				}
			case syntax.FnItem:
				g.fn(node, child)
			}
		}

	case syntax.FnItem:
		g.fn(n, it)

	case syntax.TypeAliasItem:
		g.define(n, it, nil)
		if it.Type != nil {
			g.record(n, it.Type)
		}
	}
}

func (g *Graph) fn(n *Node, it *syntax.Item) {
	node := g.open(n, it, model.FnScope, n.Chain.Self.Path.Append(it.Name))
	if n.Chain.Kind != model.ImplScope && n.Chain.Kind != model.TraitScope {
		g.items[node.Chain.Self.Path.Key()] = &Def{Name: it.Name, Path: node.Chain.Self.Path, Item: it, Node: node, Parent: n}
	}
	if sig := it.Sig; sig != nil {
		if sig.Receiver != nil && sig.Receiver.Type != nil {
			g.record(node, sig.Receiver.Type)
		}
		for _, p := range sig.Params {
			g.record(node, p.Type)
		}
		if sig.Output != nil {
			g.record(node, sig.Output)
		}
	}
	g.visit(node, it.Items)
}

func (g *Graph) open(parent *Node, it *syntax.Item, kind model.ScopeKind, path syntax.Path) *Node {
	chain := &model.ScopeChain{Kind: kind, Attrs: it.Attrs, Self: model.SelfScope{Path: path}}
	return g.add(newNode(chain, it, parent))
}

// define binds the item's name in the type namespace of n.
func (g *Graph) define(n *Node, it *syntax.Item, node *Node) *Def {
	d := &Def{Name: it.Name, Path: n.Chain.Self.Path.Append(it.Name), Item: it, Node: node, Parent: n}
	n.defs[it.Name] = d
	g.items[d.Path.Key()] = d
	return d
}

func (g *Graph) self(n *Node, o model.ObjectKind) {
	n.Chain.Self.Object = o
	n.types.put(selfType.Key(), selfType, o)
}

// placeImpl derives the canonical path of an impl scope from its self type
// and propagates it to the methods declared inside.
func (g *Graph) placeImpl(n *Node) {
	o := classify.Object(n.selfType, g.resolver(n))
	canon := classify.Canonical(n.selfType, g.resolver(n)).Core()
	path := n.Parent.Chain.Self.Path.Append(mangle.Mangle(canon))
	if canon.Kind == syntax.PathType && canon.QSelf == nil && !canon.Path.IsEmpty() {
		path = canon.Path.ArgLess()
	}
	n.Chain.Self = model.SelfScope{Path: path, Object: o}
	n.types.put(selfType.Key(), selfType, o)
	for _, c := range n.Children {
		if c.Chain.Kind == model.FnScope && c.Item != nil {
			c.Chain.Self.Path = path.Append(c.Item.Name)
		}
	}
}
