// Package emit turns the classified crate into the FFI glue module: one
// wrapper per exported item, one wrapper per generic instantiation and
// the extern functions that reach them.
package emit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/classify"
	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/graph"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/scope"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// DefaultModName is the module the glue is generated into.
const DefaultModName = "fermented"

// Options configures an Engine.
type Options struct {
	// Crate is the crate the glue is compiled into. Its paths are written
	// relative to `crate`.
	Crate string
	// ModName names the generated module and its file.
	ModName string
	Logger  *slog.Logger
}

// Output is the result of one emission.
type Output struct {
	// Files maps paths relative to the output directory to their content.
	Files map[string][]byte
	// Items lists the FFI names of the emitted item wrappers.
	Items []string
	// Functions lists the emitted extern functions of exported fns and
	// methods.
	Functions []string
	// Generics lists the emitted generic wrappers.
	Generics []string
}

// Engine emits the glue for one crate. It is single-use.
type Engine struct {
	graph  *scope.Graph
	index  *inventory.Index
	cls    *classify.Classifier
	bag    *diag.Bag
	opts   Options
	logger *slog.Logger

	items  map[string]*item
	traits map[string]*traitInfo
	broken map[string]bool
	err    error
	// settled: the registry is complete and conversions only look names
	// up.
	settled bool

	types    *module
	generics []glueBlock
	names    []string
	fns      []string
}

type glueBlock struct {
	name string
	text string
}

// New creates an engine over a refined scope graph, the validated
// registrations and the classifier that feeds the generic registry.
func New(g *scope.Graph, index *inventory.Index, cls *classify.Classifier, bag *diag.Bag, opts Options) *Engine {
	if opts.ModName == "" {
		opts.ModName = DefaultModName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		graph:  g,
		index:  index,
		cls:    cls,
		bag:    bag,
		opts:   opts,
		logger: opts.Logger,
		items:  make(map[string]*item),
		traits: make(map[string]*traitInfo),
		broken: make(map[string]bool),
		types:  newModule(""),
	}
}

// Emit produces the glue module. Unsupported and unresolved constructs are
// reported to the bag and emitted opaquely; a fatal diagnostic or a
// cancelled context aborts.
func (e *Engine) Emit(ctx context.Context) (*Output, error) {
	if err := ensureTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	e.plan()
	e.planTraits()
	e.classifyItems()
	order := e.breakCycles()

	for _, it := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.emitItem(it)
	}
	for _, tr := range e.sortedTraits() {
		if tr.ok {
			e.emitTrait(tr)
		}
	}
	for _, entry := range e.index.ByMarker(inventory.Export) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch entry.Item.Kind {
		case syntax.FnItem:
			e.emitFn(entry)
		case syntax.ImplItem:
			e.emitImpl(entry)
		}
	}
	if err := e.emitGenerics(ctx); err != nil {
		return nil, err
	}
	if e.err != nil || e.bag.HasFatal() {
		return nil, diag.Fatal(e.bag, e.err)
	}

	text, err := e.render()
	if err != nil {
		return nil, err
	}
	out := &Output{
		Files:     map[string][]byte{e.opts.ModName + ".rs": text},
		Items:     e.names,
		Functions: e.fns,
	}
	for _, g := range e.generics {
		out.Generics = append(out.Generics, g.name)
	}
	e.logger.Debug("emitted glue", "items", len(out.Items), "generics", len(out.Generics))
	return out, nil
}

// item is an exported or opaque struct, enum or alias.
type item struct {
	entry  inventory.Entry
	def    *scope.Def
	name   string
	gate   syntax.Attributes
	loc    diag.Location
	opaque bool
	// wrapped: the item gets a repr(C) wrapper other conversions refer to.
	wrapped bool

	fields   []fieldPlan
	variants []variantPlan
}

type fieldPlan struct {
	name   string // FFI field name
	access string // Rust field name or index
	obj    model.ObjectKind
	gate   syntax.Attributes
	loc    diag.Location
	public bool
}

type variantPlan struct {
	name    string
	attrs   syntax.Attributes
	fields  []fieldPlan
	tuple   bool
	unit    bool
	discrim string
}

// plan collects the data items to emit and decides which get a wrapper.
func (e *Engine) plan() {
	for _, marker := range []inventory.Marker{inventory.Export, inventory.Opaque} {
		for _, entry := range e.index.ByMarker(marker) {
			switch entry.Item.Kind {
			case syntax.StructItem, syntax.EnumItem, syntax.TypeAliasItem:
			default:
				continue
			}
			def, ok := e.graph.Item(entry.Path)
			if !ok {
				e.bag.Addf(diag.UnresolvedName, entry.Location(), entry.Path.String(), "registered item is not reachable from the crate root")
				continue
			}
			key := entry.Path.Key()
			if _, dup := e.items[key]; dup {
				continue
			}
			it := &item{
				entry:  entry,
				def:    def,
				name:   mangle.Path(def.Path),
				gate:   gate(def),
				loc:    entry.Location(),
				opaque: marker == inventory.Opaque || e.index.Opaque(entry.Path),
			}
			it.wrapped = !it.opaque
			if !def.Item.Generics.IsEmpty() {
				e.bag.Addf(diag.UnsupportedConstruct, it.loc, def.Path.String(), "generic items cannot be exported; instantiate them through an alias")
				continue
			}
			e.items[key] = it
		}
	}
}

// gate is the cfg chain an item is emitted under.
func gate(def *scope.Def) syntax.Attributes {
	if def.Node != nil {
		return def.Node.Chain.CfgChain()
	}
	return def.Parent.Chain.CfgChain().Merge(def.Item.Attrs.Cfg())
}

// classifyItems resolves the field types of every planned item.
func (e *Engine) classifyItems() {
	for _, it := range e.sortedItems() {
		d := it.def
		sc := d.Scope()
		switch d.Item.Kind {
		case syntax.StructItem:
			it.fields = e.fields(it, sc, d.Item.Fields, d.Item.Tuple)
			for _, f := range it.fields {
				if !f.public && it.wrapped {
					e.bag.Addf(diag.UnsupportedConstruct, f.loc, d.Path.String()+"."+f.access, "private field; the item is emitted as an opaque pointer")
					it.wrapped = false
				}
			}
		case syntax.EnumItem:
			for _, v := range d.Item.Variants {
				it.variants = append(it.variants, variantPlan{
					name:    v.Name,
					attrs:   v.Attrs.Cfg(),
					fields:  e.fields(it, sc, v.Fields, v.Tuple),
					tuple:   v.Tuple,
					unit:    v.Unit || len(v.Fields) == 0,
					discrim: v.Discriminant,
				})
			}
		case syntax.TypeAliasItem:
			o, err := e.cls.Gated(d.Item.Type, sc, it.gate, it.loc)
			e.fail(err)
			it.fields = []fieldPlan{{name: "o_0", access: "0", obj: o, gate: it.gate, loc: it.loc, public: true}}
		}
	}
}

func (e *Engine) fields(it *item, sc *model.ScopeChain, fields []syntax.Field, tuple bool) []fieldPlan {
	var out []fieldPlan
	for i, f := range fields {
		fp := fieldPlan{
			name:   f.Name,
			access: f.Name,
			gate:   it.gate.Merge(f.Attrs.Cfg()),
			loc:    diag.Location{File: it.loc.File, Line: f.Line},
			public: f.Public || it.def.Item.Kind == syntax.EnumItem,
		}
		if tuple || f.Name == "" {
			fp.name = ffiField(i)
			fp.access = itoa(i)
		}
		o, err := e.cls.Gated(f.Type, sc, fp.gate, fp.loc)
		e.fail(err)
		fp.obj = o
		out = append(out, fp)
	}
	return out
}

func (e *Engine) fail(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
}

// breakCycles builds the dependency graph between wrapped items, reports
// the by-value cycles and marks the fields closing them for opaque
// emission. It returns the items with dependencies first.
func (e *Engine) breakCycles() []*item {
	g := graph.New()
	byName := make(map[string]*item, len(e.items))
	for _, it := range e.sortedItems() {
		byName[it.name] = it
		g.AddNode(it.name)
		if !it.wrapped {
			continue
		}
		for _, f := range it.fields {
			e.depend(g, it.name, f.obj, true, f.name)
		}
		for _, v := range it.variants {
			for _, f := range v.fields {
				e.depend(g, it.name, f.obj, true, v.name+"."+f.name)
			}
		}
	}
	for _, cycle := range g.Cycles() {
		for _, edge := range g.BackEdges(cycle) {
			e.broken[edge.Source+"."+edge.Via] = true
			src := byName[edge.Source]
			e.bag.Add(diag.Diagnostic{
				Kind:     diag.StructuralCycle,
				Severity: diag.Warning,
				Location: src.loc,
				Subject:  src.def.Path.String(),
				Message:  "field " + edge.Via + " holds " + edge.Target + " by value in a cycle (" + strings.Join(cycle, " -> ") + "); emitted as an opaque pointer",
			})
		}
	}
	var out []*item
	for _, name := range g.Order() {
		if it, ok := byName[name]; ok {
			out = append(out, it)
		}
	}
	return out
}

// depend adds the edges o introduces. value tracks whether the path from
// the source holds o inline.
func (e *Engine) depend(g *graph.Graph, from string, o model.ObjectKind, value bool, via string) {
	k := o.Kind
	if k.Ref.IsRef() {
		value = false
	}
	switch {
	case k.Tag == model.Object:
		if t := o.Type(); t != nil && t.Kind == syntax.PathType {
			if it, ok := e.items[t.Path.ArgLess().Key()]; ok && it.wrapped {
				kind := graph.Indirect
				if value {
					kind = graph.Value
				}
				g.AddEdge(from, it.name, kind, via)
				return
			}
		}
	case k.IsSmartPointer(model.MutexPtr, model.RwLockPtr, model.CellPtr, model.RefCellPtr, model.UnsafeCellPtr, model.OnceLockPtr):
	case k.IsSmartPointer(), k.IsLambda(), k.Tag == model.Slice, k.Tag == model.Trait:
		value = false
	case k.IsGroup(model.ResultGroup), k.Tag == model.Optional, k.Tag == model.Array, k.Tag == model.Tuple:
	case k.IsGroup():
		value = false
	}
	for _, n := range k.Model.Nested {
		e.depend(g, from, n.Object, value, via)
	}
}

func (e *Engine) sortedItems() []*item {
	out := make([]*item, 0, len(e.items))
	for _, it := range e.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// rust renders ty as Rust source written inside the glue module.
func (e *Engine) rust(ty *syntax.Type) string {
	if ty == nil {
		return "()"
	}
	t := ty.Clone()
	e.rebaseType(t)
	return t.String()
}

func (e *Engine) rebaseType(t *syntax.Type) {
	if t == nil {
		return
	}
	if t.QSelf != nil {
		e.rebaseType(t.QSelf.Type)
		if t.QSelf.Trait != nil {
			*t.QSelf.Trait = e.rebasePath(*t.QSelf.Trait)
		}
		for i := range t.Path.Segments {
			e.rebaseSegment(&t.Path.Segments[i])
		}
	} else {
		t.Path = e.rebasePath(t.Path)
	}
	e.rebaseType(t.Elem)
	for _, el := range t.Elems {
		e.rebaseType(el)
	}
	for _, in := range t.Inputs {
		e.rebaseType(in)
	}
	e.rebaseType(t.Output)
	for i := range t.Bounds {
		t.Bounds[i].Path = e.rebasePath(t.Bounds[i].Path)
	}
}

// rebasePath rewrites a canonical path of the glue's own crate to start
// at `crate`.
func (e *Engine) rebasePath(p syntax.Path) syntax.Path {
	if p.IsEmpty() {
		return p
	}
	if !p.Global && len(p.Segments) > 1 && p.Segments[0].Ident == e.opts.Crate {
		p.Segments[0].Ident = "crate"
	}
	for i := range p.Segments {
		e.rebaseSegment(&p.Segments[i])
	}
	return p
}

func (e *Engine) rebaseSegment(s *syntax.Segment) {
	for _, a := range s.Args {
		e.rebaseType(a.Type)
	}
	for _, in := range s.Inputs {
		e.rebaseType(in)
	}
	e.rebaseType(s.Output)
}

// rustPath renders a canonical item path.
func (e *Engine) rustPath(p syntax.Path) string {
	return e.rebasePath(p.Clone()).String()
}

// modulePath is the glue module mirroring the source module at p.
func (e *Engine) modulePath(p syntax.Path) string {
	parts := append([]string{"crate", e.opts.ModName, "types"}, p.Idents()...)
	return strings.Join(parts, "::")
}

// itemPath is the wrapper of the item at p.
func (e *Engine) itemPath(p syntax.Path) string {
	return e.modulePath(p.Parent()) + "::" + mangle.Path(p)
}

func (e *Engine) genericPath(name string) string {
	return "crate::" + e.opts.ModName + "::generics::" + name
}

// place appends a block to the glue module mirroring the source module at
// p.
func (e *Engine) place(p syntax.Path, text string) {
	m := e.types
	for _, id := range p.Idents() {
		m = m.child(id)
	}
	m.blocks = append(m.blocks, text)
}
