package emit

import (
	"context"
	"sort"
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// emitGenerics emits one wrapper per registry record. Converting a record
// registers the instantiations nested in it under each of the record's
// gates, so the registry is settled first and every wrapper is emitted
// under its final gate.
func (e *Engine) emitGenerics(ctx context.Context) error {
	reg := e.cls.Registry()
	visited := make(map[string]string)
	for changed := true; changed; {
		changed = false
		for _, rec := range reg.Sorted() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := gateKey(rec)
			if k, ok := visited[rec.Name]; ok && k == key {
				continue
			}
			visited[rec.Name] = key
			changed = true
			for _, attrs := range gateSets(rec) {
				e.generic1(rec, attrs)
			}
		}
	}
	e.settled = true
	for _, rec := range reg.Sorted() {
		var as syntax.Attributes
		if a, ok := rec.Cfg(); ok {
			as = syntax.Attributes{a}
		}
		if text := e.generic1(rec, as); text != "" {
			e.generics = append(e.generics, glueBlock{name: rec.Name, text: text})
		}
	}
	sort.Slice(e.generics, func(i, j int) bool { return e.generics[i].name < e.generics[j].name })
	return nil
}

func gateKey(rec *mangle.Record) string {
	if rec.Ungated {
		return "*"
	}
	parts := make([]string, len(rec.Gates))
	for i, g := range rec.Gates {
		parts[i] = strings.Join(g, "&")
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// gateSets returns one attribute set per gate the record is used under;
// nil stands for an ungated use.
func gateSets(rec *mangle.Record) []syntax.Attributes {
	if rec.Ungated {
		return []syntax.Attributes{nil}
	}
	out := make([]syntax.Attributes, 0, len(rec.Gates))
	for _, g := range rec.Gates {
		args := g[0]
		if len(g) > 1 {
			args = "all(" + strings.Join(g, ", ") + ")"
		}
		out = append(out, syntax.Attributes{{Path: "cfg", Args: args, HasArgs: true}})
	}
	return out
}

func (e *Engine) root() *model.ScopeChain {
	if sc := e.graph.Root(e.opts.Crate); sc != nil {
		return sc
	}
	if crates := e.graph.Crates(); len(crates) > 0 {
		return e.graph.Root(crates[0])
	}
	return nil
}

// generic1 renders the wrapper of one record under attrs.
func (e *Engine) generic1(rec *mangle.Record, as syntax.Attributes) string {
	o := e.graph.Lookup(rec.Type, e.root())
	k := o.Kind
	s := site{attrs: as, loc: diag.Location{}}
	target := e.rust(rec.Type)
	switch {
	case k.IsGroup(model.MapGroup):
		return e.mapWrapper(rec.Name, target, k.Nested(0), k.Nested(1), s)
	case k.IsGroup(model.ResultGroup):
		return e.resultWrapper(rec.Name, target, k.Nested(0), k.Nested(1), s)
	case k.IsGroup():
		return e.sequence(rec.Name, target, k.Nested(0), false, s)
	case k.Tag == model.Slice:
		return e.sequence(rec.Name, "Vec<"+e.rust(rec.Type.Elem)+">", k.Nested(0), false, s)
	case k.Tag == model.Array:
		return e.sequence(rec.Name, target, k.Nested(0), true, s)
	case k.Tag == model.Tuple:
		return e.tupleWrapper(rec.Name, target, k.Model.Nested, s)
	case k.IsLambda(), rec.Type.Kind == syntax.PathType && rec.Type.Path.Last() != nil && rec.Type.Path.Last().Parenthesized:
		return e.callback(rec.Name, rec.Type, s)
	}
	e.bag.Addf(diag.UnsupportedConstruct, diag.Location{}, rec.Type.String(), "no wrapper shape for this instantiation")
	return ""
}

func at(ptr string) Expr { return deref(method(raw(ptr), "add", raw("i"))) }

func forEach(count string, body Expr) string {
	return "for i in 0.." + count + " { " + Render(body) + " }"
}

// wrapperFns are the constructor and destructor of a generic wrapper.
func wrapperFns(name, ga string, fields []fieldDecl) string {
	var params []string
	var inits []fieldInit
	for _, f := range fields {
		params = append(params, f.Name+": "+f.Type)
		inits = append(inits, fieldInit{name: f.Name, value: raw(f.Name)})
	}
	ctor := execute(tmplFn, fnData{
		Attrs:  ga,
		Export: true,
		Name:   name + "_ctor",
		Params: params,
		Output: "*mut " + name,
		Body:   []string{Render(boxed(structExpr{path: name, fields: inits}))},
	})
	destroy := execute(tmplFn, fnData{
		Attrs:  ga,
		Export: true,
		Name:   name + "_destroy",
		Params: []string{"ffi: *mut " + name},
		Body:   []string{Render(freeNonNull(raw("ffi")))},
	})
	return ctor + destroy
}

// sequence is the `{count, values}` wrapper of vectors, sets, slices and
// arrays.
func (e *Engine) sequence(name, target string, elem model.ObjectKind, array bool, s site) string {
	ec := e.conv(elem, s)
	ga := attrs(s.attrs, "")
	data := conversionData{
		Attrs:  ga,
		Name:   name,
		Target: target,
		Fields: []fieldDecl{{Name: "count", Type: "usize"}, {Name: "values", Type: "*mut " + ec.ffi}},
	}
	item := closure(ec.from(at("ffi_ref.values")), "i")
	if array {
		data.From = Render(call("std::array::from_fn", item))
	} else {
		data.From = Render(method(method(raw("(0..ffi_ref.count)"), "map", item), "collect"))
	}
	values := method(method(method(raw("obj"), "into_iter"), "map", closure(ec.to(raw("o")), "o")), "collect::<Vec<_>>")
	data.To = Render(boxed(structExpr{path: name, fields: []fieldInit{
		{name: "count", value: method(raw("obj"), "len")},
		{name: "values", value: call("ferment::boxed_vec", values)},
	}}))
	if ec.destroy != nil {
		data.Drop = append(data.Drop, forEach("self.count", stmt{ec.destroy(at("self.values"))}))
	}
	data.Drop = append(data.Drop, Render(stmt{call("ferment::unbox_vec_ptr", raw("self.values"), raw("self.count"))}))
	return execute(tmplConversion, data) + wrapperFns(name, ga, data.Fields)
}

// mapWrapper is the `{count, keys, values}` wrapper of maps.
func (e *Engine) mapWrapper(name, target string, key, value model.ObjectKind, s site) string {
	kc, vc := e.conv(key, s), e.conv(value, s)
	ga := attrs(s.attrs, "")
	data := conversionData{
		Attrs:  ga,
		Name:   name,
		Target: target,
		Fields: []fieldDecl{
			{Name: "count", Type: "usize"},
			{Name: "keys", Type: "*mut " + kc.ffi},
			{Name: "values", Type: "*mut " + vc.ffi},
		},
	}
	pair := tupleExpr{elems: []Expr{kc.from(at("ffi_ref.keys")), vc.from(at("ffi_ref.values"))}}
	data.From = Render(method(method(raw("(0..ffi_ref.count)"), "map", closure(pair, "i")), "collect"))
	split := method(method(method(raw("obj"), "into_iter"), "map",
		closure(tupleExpr{elems: []Expr{kc.to(raw("k")), vc.to(raw("v"))}}, "(k, v)")), "unzip")
	data.To = Render(block(
		boxed(structExpr{path: name, fields: []fieldInit{
			{name: "count", value: raw("count")},
			{name: "keys", value: call("ferment::boxed_vec", raw("keys"))},
			{name: "values", value: call("ferment::boxed_vec", raw("values"))},
		}}),
		let_("count", method(raw("obj"), "len")),
		let_("(keys, values): (Vec<_>, Vec<_>)", split),
	))
	if kc.destroy != nil {
		data.Drop = append(data.Drop, forEach("self.count", stmt{kc.destroy(at("self.keys"))}))
	}
	if vc.destroy != nil {
		data.Drop = append(data.Drop, forEach("self.count", stmt{vc.destroy(at("self.values"))}))
	}
	data.Drop = append(data.Drop,
		Render(stmt{call("ferment::unbox_vec_ptr", raw("self.keys"), raw("self.count"))}),
		Render(stmt{call("ferment::unbox_vec_ptr", raw("self.values"), raw("self.count"))}),
	)
	return execute(tmplConversion, data) + wrapperFns(name, ga, data.Fields)
}

// resultWrapper is the `{ok, error}` wrapper of results; exactly one side
// is non-null.
func (e *Engine) resultWrapper(name, target string, ok, failure model.ObjectKind, s site) string {
	oc, ec := boxedValue(e.conv(ok, s)), boxedValue(e.conv(failure, s))
	ga := attrs(s.attrs, "")
	data := conversionData{
		Attrs:  ga,
		Name:   name,
		Target: target,
		Fields: []fieldDecl{{Name: "ok", Type: oc.ffi}, {Name: "error", Type: ec.ffi}},
	}
	data.From = Render(ifElse(isNull(raw("ffi_ref.error")),
		call("Ok", oc.from(raw("ffi_ref.ok"))),
		call("Err", ec.from(raw("ffi_ref.error")))))
	data.To = Render(boxed(matchExpr{x: raw("obj"), arms: []matchArm{
		{pat: "Ok(o)", body: structExpr{path: name, fields: []fieldInit{{name: "ok", value: oc.to(raw("o"))}, {name: "error", value: nullMut}}}},
		{pat: "Err(o)", body: structExpr{path: name, fields: []fieldInit{{name: "ok", value: nullMut}, {name: "error", value: ec.to(raw("o"))}}}},
	}}))
	for _, side := range []struct {
		field string
		c     conv
	}{{"self.ok", oc}, {"self.error", ec}} {
		if side.c.destroy != nil {
			data.Drop = append(data.Drop, Render(when(not(isNull(raw(side.field))), stmt{side.c.destroy(raw(side.field))})))
		}
	}
	return execute(tmplConversion, data) + wrapperFns(name, ga, data.Fields)
}

// tupleWrapper holds one field per element.
func (e *Engine) tupleWrapper(name, target string, elems []model.NestedArgument, s site) string {
	ga := attrs(s.attrs, "")
	data := conversionData{Attrs: ga, Name: name, Target: target}
	var from []Expr
	var to []fieldInit
	for i, el := range elems {
		c := e.conv(el.Object, s)
		f := ffiField(i)
		data.Fields = append(data.Fields, fieldDecl{Name: f, Type: c.ffi})
		from = append(from, c.from(field(raw("ffi_ref"), f)))
		to = append(to, fieldInit{name: f, value: c.to(field(raw("obj"), itoa(i)))})
		if c.destroy != nil {
			data.Drop = append(data.Drop, Render(stmt{c.destroy(field(raw("self"), f))}))
		}
	}
	if len(from) == 1 {
		data.From = "(" + Render(from[0]) + ",)"
	} else {
		data.From = Render(tupleExpr{elems: from})
	}
	data.To = Render(boxed(structExpr{path: name, fields: to}))
	return execute(tmplConversion, data) + wrapperFns(name, ga, data.Fields)
}

// callback is the wrapper of a boxed callable: the foreign caller and the
// destructor of what it returns. call converts the arguments out, invokes
// the caller and converts the result back.
func (e *Engine) callback(name string, ty *syntax.Type, s site) string {
	seg := ty.Path.Last()
	root := e.root()
	ga := attrs(s.attrs, "")
	data := callbackData{Attrs: ga, Name: name}

	var ffiParams, args, cleanup []string
	for i, in := range seg.Inputs {
		o := e.graph.Lookup(in, root)
		c := e.conv(o, s)
		ffi, to := outgoing(o, c)
		p := ffiField(i)
		data.Params = append(data.Params, p+": "+e.rust(in))
		ffiParams = append(ffiParams, p+": "+ffi)
		data.Body = append(data.Body, Render(let_("ffi_"+p, to(raw(p)))))
		args = append(args, "ffi_"+p)
		if c.destroy != nil && !(c.opaque && o.Kind.Ref.IsRef()) {
			cleanup = append(cleanup, Render(stmt{c.destroy(raw("ffi_" + p))}))
		}
	}
	data.Caller = "unsafe extern \"C\" fn(" + strings.Join(ffiParams, ", ") + ")"
	invoke := "(self.caller)(" + strings.Join(args, ", ") + ")"

	if seg.Output == nil || seg.Output.IsUnit() {
		data.Body = append(data.Body, invoke+";")
		data.Body = append(data.Body, cleanup...)
	} else {
		o := e.graph.Lookup(seg.Output, root)
		c := e.conv(o, s)
		data.Caller += " -> " + c.ffi
		data.Output = e.rust(seg.Output)
		data.Body = append(data.Body, "let ffi_result = "+invoke+";")
		data.Body = append(data.Body, cleanup...)
		data.Body = append(data.Body, Render(let_("result", c.from(raw("ffi_result")))))
		if !c.value {
			data.Destructor = "unsafe extern \"C\" fn(result: " + c.ffi + ")"
			data.Body = append(data.Body, "(self.destructor)(ffi_result);")
		}
		data.Body = append(data.Body, "result")
	}

	fields := []fieldDecl{{Name: "caller", Type: data.Caller}}
	if data.Destructor != "" {
		fields = append(fields, fieldDecl{Name: "destructor", Type: data.Destructor})
	}
	return execute(tmplCallback, data) + wrapperFns(name, ga, fields)
}
