package emit

import (
	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// thunk is the FFI side of one call: parameters with the expressions
// rebuilding the Rust arguments, and the conversion of the result.
type thunk struct {
	params []string
	args   []Expr
	output string
	ret    func(Expr) Expr
}

// body calls fn and converts what it returns.
func (t thunk) body(fn Expr) []string {
	if t.ret == nil {
		return []string{Render(stmt{fn})}
	}
	return []string{Render(let_("result", fn)), Render(t.ret(raw("result")))}
}

// unsupportedSig names the part of sig no thunk can express.
func unsupportedSig(sig *syntax.Signature) string {
	switch {
	case sig.Async:
		return "async fn"
	case !sig.Generics.IsEmpty():
		return "generic fn"
	case sig.Receiver != nil && sig.Receiver.Type != nil:
		return "typed self receiver"
	}
	for _, p := range sig.Params {
		if c := p.Type.Core(); c != nil && c.Kind == syntax.ImplType {
			return "impl Trait parameter"
		}
	}
	if sig.Output != nil && sig.Output.Kind == syntax.ImplType {
		return "impl Trait result"
	}
	return ""
}

// thunkOf converts the parameters and result of sig as written in sc.
func (e *Engine) thunkOf(sc *model.ScopeChain, sig *syntax.Signature, gate syntax.Attributes, loc diag.Location) thunk {
	s := site{top: true, attrs: gate, loc: loc}
	var t thunk
	for i, p := range sig.Params {
		o, err := e.cls.Gated(p.Type, sc, gate, loc)
		e.fail(err)
		ffi, from := incoming(o, e.conv(o, s))
		name := p.Name
		if !isIdent(name) {
			name = ffiField(i)
		}
		t.params = append(t.params, name+": "+ffi)
		t.args = append(t.args, from(raw(name)))
	}
	if sig.Output != nil && !sig.Output.IsUnit() && sig.Output.Kind != syntax.NeverType {
		o, err := e.cls.Gated(sig.Output, sc, gate, loc)
		e.fail(err)
		t.output, t.ret = outgoing(o, e.conv(o, s))
	}
	return t
}

func isIdent(s string) bool {
	if s == "" || s == "_" || s == "self" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		case r == '#' && i == 1 && s[0] == 'r':
		default:
			return false
		}
	}
	return true
}

// emitFn emits the thunk of an exported free function.
func (e *Engine) emitFn(entry inventory.Entry) {
	def, ok := e.graph.Item(entry.Path)
	if !ok || def.Item.Sig == nil {
		e.bag.Addf(diag.UnresolvedName, entry.Location(), entry.Path.String(), "registered fn is not reachable from the crate root")
		return
	}
	sig := def.Item.Sig
	loc := entry.Location()
	if reason := unsupportedSig(sig); reason != "" {
		e.bag.Addf(diag.UnsupportedConstruct, loc, def.Path.String(), "%s cannot be exported", reason)
		return
	}
	g := def.Scope().CfgChain()
	t := e.thunkOf(def.Scope(), sig, g, loc)
	name := mangle.Path(def.Path)
	e.place(def.Path.Parent(), execute(tmplFn, fnData{
		Attrs:  attrs(g, ""),
		Export: true,
		Name:   name,
		Params: t.params,
		Output: t.output,
		Body:   t.body(call(e.rustPath(def.Path), t.args...)),
	}))
	e.fns = append(e.fns, name)
}

// emitImpl emits an exported impl block: method thunks for an inherent
// impl, an implementor v-table for a trait impl.
func (e *Engine) emitImpl(entry inventory.Entry) {
	sc, ok := e.graph.ScopeOf(entry.Item)
	if !ok {
		return
	}
	self := sc.Self
	if self.Object.IsEmpty() || self.Object.IsUnknown() {
		e.bag.Addf(diag.UnresolvedName, entry.Location(), entry.Type.String(), "impl self type is unresolved; the impl is skipped")
		return
	}
	if !entry.Item.Generics.IsEmpty() {
		e.bag.Addf(diag.UnsupportedConstruct, entry.Location(), entry.Type.String(), "generic impl cannot be exported")
		return
	}
	if entry.Item.Trait != nil {
		e.emitImplementor(entry, sc)
		return
	}
	for _, child := range entry.Item.Items {
		if child.Kind != syntax.FnItem || !child.Public || child.Sig == nil {
			continue
		}
		e.emitMethod(entry, sc, child)
	}
}

func (e *Engine) emitMethod(entry inventory.Entry, impl *model.ScopeChain, fn *syntax.Item) {
	loc := diag.Location{File: entry.File, Line: fn.Line}
	subject := impl.Self.Path.String() + "::" + fn.Name
	sig := fn.Sig
	if reason := unsupportedSig(sig); reason != "" {
		e.bag.Addf(diag.UnsupportedConstruct, loc, subject, "%s cannot be exported", reason)
		return
	}
	sc, ok := e.graph.ScopeOf(fn)
	if !ok {
		return
	}
	g := sc.CfgChain()
	t := e.thunkOf(sc, sig, g, loc)
	selfTy := e.rust(impl.Self.Object.Type())

	var callee Expr
	params := t.params
	if r := sig.Receiver; r != nil {
		c := e.conv(impl.Self.Object, site{top: true, attrs: g, loc: loc})
		var recv Expr
		switch {
		case c.opaque && r.Ref && r.Mutable:
			recv = refMut(deref(raw("obj")))
		case c.opaque && r.Ref:
			recv = ref(deref(raw("obj")))
		case r.Ref && r.Mutable:
			e.bag.Addf(diag.UnsupportedConstruct, loc, subject, "&mut self on a converted type would mutate a copy; mark the type opaque to export it")
			return
		default:
			recv = c.from(raw("obj"))
		}
		params = append([]string{"obj: " + c.ffi}, params...)
		callee = methodExpr{recv: recv, name: fn.Name, args: t.args}
	} else {
		callee = callExpr{fn: raw("<" + selfTy + ">::" + fn.Name), args: t.args}
	}

	name := mangle.Path(impl.Self.Path) + "_" + fn.Name
	e.place(entry.Path, execute(tmplFn, fnData{
		Attrs:  attrs(g, ""),
		Export: true,
		Name:   name,
		Params: params,
		Output: t.output,
		Body:   t.body(callee),
	}))
	e.fns = append(e.fns, name)
}
