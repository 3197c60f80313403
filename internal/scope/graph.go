// Package scope builds the crate-wide scope graph and resolves names to
// canonical paths.
package scope

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/pankcuf/ferment-sub004/internal/classify"
	"github.com/pankcuf/ferment-sub004/internal/crate"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Options configures graph construction.
type Options struct {
	Logger *slog.Logger
	// External lists crates that are referenced but not loaded. Their paths
	// are kept as written and resolve to Unknown.
	External []string
}

// Def is a named item.
type Def struct {
	Name string
	Path syntax.Path
	Item *syntax.Item
	// Node is the scope the item opens; nil for aliases.
	Node *Node
	// Parent is the scope the item is declared in.
	Parent *Node

	object model.ObjectKind
}

// Scope returns the scope the item's own types are written in.
func (d *Def) Scope() *model.ScopeChain {
	if d.Node != nil {
		return d.Node.Chain
	}
	return d.Parent.Chain
}

// Node is one scope.
type Node struct {
	Chain    *model.ScopeChain
	Item     *syntax.Item
	Parent   *Node
	Children []*Node

	defs     map[string]*Def
	imports  map[string]syntax.Path
	globs    []syntax.Path
	assoc    map[string]*syntax.Item
	selfType *syntax.Type
	types    *TypeChain
}

func newNode(chain *model.ScopeChain, item *syntax.Item, parent *Node) *Node {
	n := &Node{
		Chain:   chain,
		Item:    item,
		Parent:  parent,
		defs:    make(map[string]*Def),
		imports: make(map[string]syntax.Path),
		assoc:   make(map[string]*syntax.Item),
		types:   newTypeChain(),
	}
	if parent != nil {
		chain.Parent = parent.Chain
		chain.Crate = parent.Chain.Crate
		parent.Children = append(parent.Children, n)
	}
	return n
}

// SelfType returns the self type of an impl scope as written.
func (n *Node) SelfType() *syntax.Type { return n.selfType }

// generics returns the generic parameters declared by the node's item.
func (n *Node) generics() *syntax.Generics {
	if n.Item == nil {
		return nil
	}
	switch n.Item.Kind {
	case syntax.FnItem:
		if n.Item.Sig != nil {
			return &n.Item.Sig.Generics
		}
		return nil
	case syntax.StructItem, syntax.EnumItem, syntax.TraitItem, syntax.ImplItem:
		return &n.Item.Generics
	}
	return nil
}

func (n *Node) module() *Node {
	for c := n; c != nil; c = c.Parent {
		if c.Chain.Kind == model.ModuleScope || c.Chain.Kind == model.CrateRootScope {
			return c
		}
	}
	return nil
}

// Graph is the scope graph of one or more crates. Resolution reads the
// graph structure, which is fixed once Build returns; type chains are
// guarded by the graph's lock.
type Graph struct {
	mu       sync.Mutex
	logger   *slog.Logger
	roots    map[string]*Node
	order    []string
	nodes    []*Node
	byChain  map[*model.ScopeChain]*Node
	byItem   map[*syntax.Item]*Node
	items    map[string]*Def
	external map[string]bool
}

// Build visits every crate and populates the graph. Type chains hold the
// resolution known at the time each type was visited; call Refine to
// settle them.
func Build(crates []*crate.Crate, opts Options) *Graph {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	g := &Graph{
		logger:   opts.Logger,
		roots:    make(map[string]*Node),
		byChain:  make(map[*model.ScopeChain]*Node),
		byItem:   make(map[*syntax.Item]*Node),
		items:    make(map[string]*Def),
		external: make(map[string]bool),
	}
	for _, name := range opts.External {
		g.external[name] = true
	}
	for _, c := range crates {
		chain := &model.ScopeChain{Kind: model.CrateRootScope, Crate: c.Name, Self: model.SelfScope{Path: syntax.NewPath(c.Name)}}
		if c.Root != nil {
			chain.Attrs = inner(c.Root.Attrs)
		}
		g.roots[c.Name] = g.add(newNode(chain, nil, nil))
		g.order = append(g.order, c.Name)
	}
	for _, c := range crates {
		if c.Root != nil {
			g.visit(g.roots[c.Name], c.Root.Items)
		}
	}
	g.logger.Debug("Scope graph built", "crates", len(crates), "scopes", len(g.nodes), "items", len(g.items))
	return g
}

func inner(attrs syntax.Attributes) syntax.Attributes {
	var out syntax.Attributes
	for _, a := range attrs {
		if a.IsCfg() {
			a.Inner = false
			out = append(out, a)
		}
	}
	return out
}

func (g *Graph) add(n *Node) *Node {
	g.nodes = append(g.nodes, n)
	g.byChain[n.Chain] = n
	if n.Item != nil {
		g.byItem[n.Item] = n
	}
	return n
}

// Crates returns the crate names in load order.
func (g *Graph) Crates() []string { return g.order }

// Root returns the crate root scope.
func (g *Graph) Root(crateName string) *model.ScopeChain {
	if n, ok := g.roots[crateName]; ok {
		return n.Chain
	}
	return nil
}

// Scopes returns every scope in visit order.
func (g *Graph) Scopes() []*model.ScopeChain {
	out := make([]*model.ScopeChain, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Chain
	}
	return out
}

// Node returns the node of a scope.
func (g *Graph) Node(scope *model.ScopeChain) (*Node, bool) {
	n, ok := g.byChain[scope]
	return n, ok
}

// ScopeOf returns the scope an item opens, if it opens one.
func (g *Graph) ScopeOf(item *syntax.Item) (*model.ScopeChain, bool) {
	n, ok := g.byItem[item]
	if !ok {
		return nil, false
	}
	return n.Chain, true
}

// Item returns the item defined at a canonical path.
func (g *Graph) Item(path syntax.Path) (*Def, bool) {
	d, ok := g.items[path.ArgLess().Key()]
	return d, ok
}

// Items returns every named item ordered by canonical path.
func (g *Graph) Items() []*Def {
	out := make([]*Def, 0, len(g.items))
	for _, d := range g.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.String() < out[j].Path.String() })
	return out
}

// Module returns the module scope at a canonical module path.
func (g *Graph) Module(path syntax.Path) (*model.ScopeChain, bool) {
	if len(path.Segments) == 1 {
		if n, ok := g.roots[path.FirstIdent()]; ok {
			return n.Chain, true
		}
	}
	d, ok := g.Item(path)
	if !ok || d.Node == nil || d.Item.Kind != syntax.ModItem {
		return nil, false
	}
	return d.Node.Chain, true
}

// Impls returns the impl scopes in visit order.
func (g *Graph) Impls() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Chain.Kind == model.ImplScope {
			out = append(out, n)
		}
	}
	return out
}

// TypeChain returns a snapshot of the visible-type dictionary of a scope.
func (g *Graph) TypeChain(scope *model.ScopeChain) *TypeChain {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.byChain[scope]; ok {
		return n.types.clone()
	}
	return newTypeChain()
}

// Resolve resolves a path written in scope.
func (g *Graph) Resolve(path syntax.Path, scope *model.ScopeChain) model.ObjectKind {
	n, ok := g.byChain[scope]
	if !ok {
		return model.UnknownOf(syntax.PathOf(path.ArgLess()))
	}
	return g.resolver(n).ResolvePath(path)
}

// ResolveType returns the canonical form of ty written in scope along with
// the object it names.
func (g *Graph) ResolveType(ty *syntax.Type, scope *model.ScopeChain) (*syntax.Type, model.ObjectKind) {
	o := g.Lookup(ty, scope)
	n, ok := g.byChain[scope]
	if !ok {
		return ty, o
	}
	return classify.Canonical(ty, g.resolver(n)), o
}

// Lookup returns the object ty names in scope, consulting and filling the
// scope's type chain.
func (g *Graph) Lookup(ty *syntax.Type, scope *model.ScopeChain) model.ObjectKind {
	n, ok := g.byChain[scope]
	if !ok {
		return model.UnknownOf(ty)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.record(n, ty)
}

func (g *Graph) record(n *Node, ty *syntax.Type) model.ObjectKind {
	if ty == nil {
		return classify.Object(nil, g.resolver(n))
	}
	key := ty.Key()
	if o, ok := n.types.objects[key]; ok {
		return o
	}
	o := classify.Object(ty, g.resolver(n))
	n.types.put(key, ty, o)
	return o
}

// Refine re-resolves every type-chain entry that still holds an unknown
// part until a full pass changes nothing. A replacement is accepted only
// when it has fewer unknown parts, so no entry ever regresses. It returns
// the number of passes run.
func (g *Graph) Refine() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	passes := 0
	for {
		passes++
		changed := 0
		for _, n := range g.nodes {
			r := g.resolver(n)
			for _, key := range n.types.keys {
				old := n.types.objects[key]
				if !old.HasUnknown() {
					continue
				}
				fresh := classify.Object(n.types.types[key], r)
				if fresh.UnknownCount() < old.UnknownCount() {
					n.types.objects[key] = fresh
					changed++
				}
			}
		}
		g.logger.Debug("Refinement pass", "pass", passes, "changed", changed)
		if changed == 0 {
			break
		}
	}

	for _, n := range g.nodes {
		if n.Chain.Kind == model.ImplScope {
			g.placeImpl(n)
		}
	}
	return passes
}

// Unresolved returns every type-chain entry that still has unknown parts,
// ordered by scope visit order.
func (g *Graph) Unresolved() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Entry
	for _, n := range g.nodes {
		for _, key := range n.types.keys {
			if o := n.types.objects[key]; o.HasUnknown() {
				out = append(out, Entry{Scope: n.Chain, Type: n.types.types[key], Object: o})
			}
		}
	}
	return out
}
