package emit

import (
	"sort"
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/scope"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// traitInfo is an exported trait and whether it can cross the boundary as
// a trait object.
type traitInfo struct {
	path    syntax.Path
	name    string
	def     *scope.Def
	model   *model.TraitModel
	gate    syntax.Attributes
	loc     diag.Location
	ok      bool
	reason  string
	markers []string
	supers  []*traitInfo
	superOf []syntax.Path
}

func (t *traitInfo) modulePath(e *Engine) string { return e.modulePath(t.path.Parent()) }

func (t *traitInfo) objectPath(e *Engine) string {
	return t.modulePath(e) + "::" + t.name + "_TraitObject"
}

func (t *traitInfo) vtable() string { return t.name + "_VTable" }

// autoMarkers are the supertraits a trait object can implement without a
// v-table.
var autoMarkers = map[string]bool{"Send": true, "Sync": true, "Sized": true, "Unpin": true}

// planTraits collects the exported traits and decides which are object
// safe. A trait is usable only when every supertrait is.
func (e *Engine) planTraits() {
	for _, entry := range e.index.ByMarker(inventory.Export) {
		if entry.Item.Kind != syntax.TraitItem {
			continue
		}
		def, ok := e.graph.Item(entry.Path)
		if !ok || def.Node == nil {
			e.bag.Addf(diag.UnresolvedName, entry.Location(), entry.Path.String(), "registered trait is not reachable from the crate root")
			continue
		}
		tr := &traitInfo{
			path:  def.Path,
			name:  mangle.Path(def.Path),
			def:   def,
			model: model.NewTraitModel(def.Path, def.Item),
			gate:  gate(def),
			loc:   entry.Location(),
		}
		tr.reason = e.objectSafety(tr)
		tr.ok = tr.reason == ""
		e.traits[def.Path.Key()] = tr
	}

	for _, tr := range e.sortedTraits() {
		if !tr.ok {
			continue
		}
		for _, sp := range tr.superOf {
			o := e.graph.Resolve(sp, tr.def.Node.Chain)
			if o.Kind.Trait == nil {
				tr.ok, tr.reason = false, "supertrait "+sp.String()+" is unresolved"
				break
			}
			st, ok := e.traits[o.Kind.Trait.Path.Key()]
			if !ok {
				tr.ok, tr.reason = false, "supertrait "+o.Kind.Trait.Path.String()+" is not exported"
				break
			}
			tr.supers = append(tr.supers, st)
		}
	}
	for changed := true; changed; {
		changed = false
		for _, tr := range e.sortedTraits() {
			if !tr.ok {
				continue
			}
			for _, st := range tr.supers {
				if !st.ok {
					tr.ok, tr.reason = false, "supertrait "+st.path.String()+" cannot cross the boundary"
					changed = true
					break
				}
			}
		}
	}
	for _, tr := range e.sortedTraits() {
		if !tr.ok {
			e.bag.Addf(diag.UnsupportedConstruct, tr.loc, tr.path.String(), "trait is not object safe (%s); no trait object is emitted", tr.reason)
			continue
		}
		tr.markers = closureMarkers(tr)
	}
}

// objectSafety returns why tr cannot be used as a trait object, or "".
func (e *Engine) objectSafety(tr *traitInfo) string {
	if !tr.def.Item.Generics.IsEmpty() {
		return "generic trait"
	}
	if len(tr.model.AssocTypes) > 0 {
		return "associated types"
	}
	for _, sp := range tr.model.Supertraits {
		ident := sp.LastIdent()
		switch {
		case autoMarkers[ident]:
			if ident == "Send" || ident == "Sync" {
				tr.markers = append(tr.markers, ident)
			}
		case model.IsMarkerTrait(ident):
			return "supertrait " + ident + " has no v-table"
		default:
			tr.superOf = append(tr.superOf, sp)
		}
	}
	for _, m := range tr.model.Methods {
		sig := m.Sig
		switch {
		case sig == nil:
			return "method " + m.Name + " has no signature"
		case sig.Receiver == nil:
			return "method " + m.Name + " has no self receiver"
		case !sig.Receiver.Ref || sig.Receiver.Type != nil:
			return "method " + m.Name + " takes self by value"
		case sig.Async:
			return "method " + m.Name + " is async"
		case !sig.Generics.IsEmpty():
			return "method " + m.Name + " is generic"
		case sig.Output != nil && (sig.Output.Kind == syntax.RefType || sig.Output.Kind == syntax.ImplType):
			return "method " + m.Name + " returns a borrowed or opaque value"
		}
		types := []*syntax.Type{sig.Output}
		for _, p := range sig.Params {
			types = append(types, p.Type)
		}
		for _, t := range types {
			if mentionsSelf(t) {
				return "method " + m.Name + " mentions Self"
			}
		}
	}
	return ""
}

func mentionsSelf(t *syntax.Type) bool {
	found := false
	t.Walk(func(t *syntax.Type) bool {
		if t.Kind == syntax.PathType && t.Path.FirstIdent() == "Self" {
			found = true
		}
		return !found
	})
	return found
}

// closureMarkers are the auto traits of tr and every supertrait.
func closureMarkers(tr *traitInfo) []string {
	set := make(map[string]bool)
	var walk func(*traitInfo)
	walk = func(t *traitInfo) {
		for _, m := range t.markers {
			set[m] = true
		}
		for _, s := range t.supers {
			walk(s)
		}
	}
	walk(tr)
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) sortedTraits() []*traitInfo {
	out := make([]*traitInfo, 0, len(e.traits))
	for _, tr := range e.traits {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// traitMethod is one trait method as seen from the glue.
type traitMethod struct {
	name    string
	mutable bool
	sig     *syntax.Signature
	scope   *model.ScopeChain
	// forward signature written with canonical types.
	decl   string
	params []forwardParam
	result *model.ObjectKind
}

type forwardParam struct {
	name string
	obj  model.ObjectKind
}

func (e *Engine) methods(tr *traitInfo) []traitMethod {
	var out []traitMethod
	for _, it := range tr.def.Item.Items {
		if it.Kind != syntax.FnItem || it.Sig == nil {
			continue
		}
		sc, ok := e.graph.ScopeOf(it)
		if !ok {
			continue
		}
		loc := diag.Location{File: tr.loc.File, Line: it.Line}
		m := traitMethod{name: it.Name, mutable: it.Sig.Receiver.Mutable, sig: it.Sig, scope: sc}
		recv := "&self"
		if m.mutable {
			recv = "&mut self"
		}
		parts := []string{recv}
		for i, p := range it.Sig.Params {
			name := p.Name
			if !isIdent(name) {
				name = ffiField(i)
			}
			canon, _ := e.graph.ResolveType(p.Type, sc)
			o, err := e.cls.Gated(p.Type, sc, tr.gate, loc)
			e.fail(err)
			m.params = append(m.params, forwardParam{name: name, obj: o})
			parts = append(parts, name+": "+e.rust(canon))
		}
		m.decl = "fn " + it.Name + "(" + strings.Join(parts, ", ") + ")"
		if res := it.Sig.Output; res != nil && !res.IsUnit() {
			canon, _ := e.graph.ResolveType(res, sc)
			o, err := e.cls.Gated(res, sc, tr.gate, loc)
			e.fail(err)
			m.result = &o
			m.decl += " -> " + e.rust(canon)
		}
		out = append(out, m)
	}
	return out
}

// emitTrait emits the v-table and trait-object structs of tr, the forwarding
// impls that let a foreign object stand in for a Rust implementor, and the
// v-table over Box<dyn Trait> that hands Rust implementors out.
func (e *Engine) emitTrait(tr *traitInfo) {
	s := site{top: true, attrs: tr.gate, loc: tr.loc}
	ga := attrs(tr.gate, "")
	var b strings.Builder

	data := vtableData{Attrs: ga, Name: tr.name, Markers: tr.markers}
	for _, m := range e.methods(tr) {
		t := e.thunkOf(m.scope, m.sig, tr.gate, tr.loc)
		data.Slots = append(data.Slots, m.name+": "+slotType(m.mutable, t))
	}
	data.Slots = append(data.Slots, "object_drop: unsafe extern \"C\" fn(obj: *mut ())")
	for _, st := range tr.supers {
		data.Slots = append(data.Slots, "super_"+st.name+": *const "+st.modulePath(e)+"::"+st.vtable())
	}
	b.WriteString(execute(tmplVTable, data))

	b.WriteString(execute(tmplFn, fnData{
		Attrs:  ga,
		Export: true,
		Name:   tr.name + "_TraitObject_destroy",
		Params: []string{"obj: *mut " + tr.name + "_TraitObject"},
		Body: []string{Render(when(not(isNull(raw("obj"))), block(nil,
			let_("obj", call("Box::from_raw", raw("obj"))),
			stmt{call("((*obj.vtable).object_drop)", raw("obj.object"))},
		)))},
	}))

	for _, fw := range e.forwards(tr, "(*self.vtable)", nil) {
		fw.Attrs = ga
		fw.Object = tr.name + "_TraitObject"
		b.WriteString(execute(tmplForward, fw))
	}

	dyn := "dyn " + e.rustPath(tr.path)
	holder := "Box<" + dyn + ">"
	static := e.vtableInstance(&b, tr.name+"_dyn", tr, holder, dyn, tr.gate, s, make(map[string]bool))
	b.WriteString(execute(tmplFn, fnData{
		Attrs:  ga,
		Rust:   true,
		Name:   tr.name + "_TraitObject_from_dyn",
		Params: []string{"obj: " + holder},
		Output: "*mut " + tr.name + "_TraitObject",
		Body:   []string{Render(traitObjectOf(tr.name+"_TraitObject", raw("obj"), static))},
	}))
	e.place(tr.path.Parent(), b.String())
	e.names = append(e.names, tr.name+"_TraitObject")
}

func traitObjectOf(object string, value Expr, static string) Expr {
	return boxed(structExpr{path: object, fields: []fieldInit{
		{name: "object", value: cast(boxed(value), "*mut ()")},
		{name: "vtable", value: ref(raw(static))},
	}})
}

func slotType(mutable bool, t thunk) string {
	recv := "obj: *const ()"
	if mutable {
		recv = "obj: *mut ()"
	}
	out := "unsafe extern \"C\" fn(" + strings.Join(append([]string{recv}, t.params...), ", ") + ")"
	if t.output != "" {
		out += " -> " + t.output
	}
	return out
}

// forwards returns the forwarding impls of tr and its supertraits. vtable
// is the expression reaching tr's v-table from self.
func (e *Engine) forwards(tr *traitInfo, vtable string, seen map[string]bool) []forwardData {
	if seen == nil {
		seen = make(map[string]bool)
	}
	if seen[tr.name] {
		return nil
	}
	seen[tr.name] = true
	fw := forwardData{Trait: e.rustPath(tr.path)}
	for _, m := range e.methods(tr) {
		fw.Methods = append(fw.Methods, forwardMethod{Sig: m.decl, Body: e.forwardBody(tr, m, vtable)})
	}
	out := []forwardData{fw}
	for _, st := range tr.supers {
		out = append(out, e.forwards(st, "(*"+vtable+".super_"+st.name+")", seen)...)
	}
	return out
}

// forwardBody converts the Rust arguments out, calls the slot and converts
// the result back. Both sides free what they were handed.
func (e *Engine) forwardBody(tr *traitInfo, m traitMethod, vtable string) []string {
	s := site{top: true, attrs: tr.gate, loc: tr.loc}
	var lines []string
	args := []Expr{raw("self.object")}
	var cleanup []string
	for _, p := range m.params {
		c := e.conv(p.obj, s)
		_, to := outgoing(p.obj, c)
		ffiName := "ffi_" + p.name
		lines = append(lines, Render(let_(ffiName, to(raw(p.name)))))
		args = append(args, raw(ffiName))
		if c.destroy != nil && !(c.opaque && p.obj.Kind.Ref.IsRef()) {
			cleanup = append(cleanup, Render(stmt{c.destroy(raw(ffiName))}))
		}
	}
	slot := callExpr{fn: raw("(" + vtable + "." + m.name + ")"), args: args}
	if m.result == nil {
		lines = append(lines, Render(stmt{slot}))
		return append(lines, cleanup...)
	}
	c := e.conv(*m.result, s)
	lines = append(lines, Render(let_("result", slot)))
	lines = append(lines, cleanup...)
	lines = append(lines, Render(let_("value", c.from(raw("result")))))
	if c.destroy != nil {
		lines = append(lines, Render(stmt{c.destroy(raw("result"))}))
	}
	return append(lines, "value")
}

// vtableInstance writes the thunks and static v-table of tr over objects
// of type holder and returns the static's name. self is the type the
// trait methods are called on.
func (e *Engine) vtableInstance(b *strings.Builder, prefix string, tr *traitInfo, holder, self string, gate syntax.Attributes, s site, seen map[string]bool) string {
	static := strings.ToUpper(prefix + "_" + tr.name + "_VTABLE")
	if seen[static] {
		return static
	}
	seen[static] = true
	ga := attrs(gate, "")
	trait := e.rustPath(tr.path)
	stars := "*"
	if strings.HasPrefix(holder, "Box<") {
		stars = "**"
	}

	var slots []string
	for _, m := range e.methods(tr) {
		t := e.thunkOf(m.scope, m.sig, gate, s.loc)
		fn := prefix + "_" + tr.name + "_" + m.name
		recv := "&" + stars + "(obj as *const " + holder + ")"
		param := "obj: *const ()"
		if m.mutable {
			recv = "&mut " + stars + "(obj as *mut " + holder + ")"
			param = "obj: *mut ()"
		}
		args := append([]Expr{raw(recv)}, t.args...)
		b.WriteString(execute(tmplFn, fnData{
			Attrs:  ga,
			Name:   fn,
			Params: append([]string{param}, t.params...),
			Output: t.output,
			Body:   t.body(callExpr{fn: raw("<" + self + " as " + trait + ">::" + m.name), args: args}),
		}))
		slots = append(slots, m.name+": "+fn)
	}
	drop := prefix + "_" + tr.name + "_object_drop"
	b.WriteString(execute(tmplFn, fnData{
		Attrs:  ga,
		Name:   drop,
		Params: []string{"obj: *mut ()"},
		Body:   []string{Render(stmt{unboxAny(cast(raw("obj"), "*mut "+holder))})},
	}))
	slots = append(slots, "object_drop: "+drop)
	for _, st := range tr.supers {
		sub := e.vtableInstance(b, prefix, st, holder, self, gate, s, seen)
		slots = append(slots, "super_"+st.name+": &"+sub)
	}
	b.WriteString(execute(tmplVTableInstance, vtableInstanceData{
		Attrs:  ga,
		Static: static,
		VTable: tr.modulePath(e) + "::" + tr.vtable(),
		Slots:  slots,
	}))
	return static
}

// emitImplementor emits the v-table of an exported `impl Trait for Type`
// and the constructor wrapping a value of Type as a trait object.
func (e *Engine) emitImplementor(entry inventory.Entry, impl *model.ScopeChain) {
	loc := entry.Location()
	o := e.graph.Resolve(*entry.Item.Trait, impl)
	if o.Kind.Trait == nil {
		e.bag.Addf(diag.UnresolvedName, loc, entry.Item.Trait.String(), "implemented trait is unresolved; the impl is skipped")
		return
	}
	tr, ok := e.traits[o.Kind.Trait.Path.Key()]
	if !ok || !tr.ok {
		e.bag.Addf(diag.UnsupportedConstruct, loc, o.Kind.Trait.Path.String(), "implemented trait is not exported as a trait object; the impl is skipped")
		return
	}
	g := impl.CfgChain().Merge(tr.gate)
	s := site{top: true, attrs: g, loc: loc}
	self := e.rust(impl.Self.Object.Type())
	prefix := mangle.Path(impl.Self.Path) + "_as"

	var b strings.Builder
	static := e.vtableInstance(&b, prefix, tr, self, self, g, s, make(map[string]bool))
	c := e.conv(impl.Self.Object, s)
	value := c.from(raw("obj"))
	name := mangle.Path(impl.Self.Path) + "_as_" + tr.name + "_TraitObject"
	b.WriteString(execute(tmplFn, fnData{
		Attrs:  attrs(g, ""),
		Export: true,
		Name:   name,
		Params: []string{"obj: " + c.ffi},
		Output: "*mut " + tr.objectPath(e),
		Body:   []string{Render(traitObjectOf(tr.objectPath(e), value, static))},
	}))
	e.place(entry.Path, b.String())
	e.fns = append(e.fns, name)
}
