package emit

import (
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

func (e *Engine) emitItem(it *item) {
	for _, f := range it.allFields() {
		if f.obj.Kind.Ref.IsRef() && it.wrapped {
			e.bag.Addf(diag.UnsupportedConstruct, f.loc, it.def.Path.String()+"."+f.access, "borrowed field; the item is emitted as an opaque pointer")
			it.wrapped = false
		}
	}
	if !it.wrapped {
		e.emitOpaque(it)
		return
	}
	var text string
	switch it.def.Item.Kind {
	case syntax.StructItem:
		text = e.emitStruct(it)
	case syntax.EnumItem:
		text = e.emitEnum(it)
	case syntax.TypeAliasItem:
		text = e.emitAlias(it)
	}
	e.place(it.def.Path.Parent(), text)
	e.names = append(e.names, it.name)
}

func (it *item) allFields() []fieldPlan {
	out := append([]fieldPlan(nil), it.fields...)
	for _, v := range it.variants {
		out = append(out, v.fields...)
	}
	return out
}

// own is the part of the field's gate not already on the item.
func (it *item) own(f fieldPlan) syntax.Attributes {
	have := make(map[string]bool, len(it.gate))
	for _, a := range it.gate {
		have[a.String()] = true
	}
	var out syntax.Attributes
	for _, a := range f.gate {
		if !have[a.String()] {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) fieldConv(it *item, f fieldPlan, via string) conv {
	if e.broken[it.name+"."+via] {
		return opaqueConv(e.rust(f.obj.Type()))
	}
	return e.conv(f.obj, site{top: true, attrs: f.gate, loc: f.loc})
}

func (e *Engine) emitStruct(it *item) string {
	target := e.rustPath(it.def.Path)
	data := conversionData{Attrs: attrs(it.gate, ""), Name: it.name, Target: target}
	var from, to, ctor []fieldInit
	var params []string
	var accessors []string
	for _, f := range it.fields {
		c := e.fieldConv(it, f, f.name)
		own := inline(it.own(f))
		data.Fields = append(data.Fields, fieldDecl{Attrs: attrs(it.own(f), "    "), Name: f.name, Type: c.ffi})
		from = append(from, fieldInit{attrs: own, name: f.access, value: c.from(field(raw("ffi_ref"), f.name))})
		to = append(to, fieldInit{attrs: own, name: f.name, value: c.to(field(raw("obj"), f.access))})
		ctor = append(ctor, fieldInit{attrs: own, name: f.name, value: raw(f.name)})
		params = append(params, own+f.name+": "+c.ffi)
		if c.destroy != nil {
			data.Drop = append(data.Drop, own+Render(stmt{c.destroy(field(raw("self"), f.name))}))
		}
		accessors = append(accessors, e.accessors(it, f, c)...)
	}
	if it.def.Item.Unit && len(it.fields) == 0 {
		data.From = target
	} else {
		data.From = Render(structExpr{path: target, fields: from})
	}
	data.To = Render(boxed(structExpr{path: it.name, fields: to}))

	var b strings.Builder
	b.WriteString(execute(tmplConversion, data))
	b.WriteString(execute(tmplFn, fnData{
		Attrs:  data.Attrs,
		Export: true,
		Name:   it.name + "_ctor",
		Params: params,
		Output: "*mut " + it.name,
		Body:   []string{Render(boxed(structExpr{path: it.name, fields: ctor}))},
	}))
	b.WriteString(e.destructor(it, "*mut "+it.name))
	for _, a := range accessors {
		b.WriteString(a)
	}
	return b.String()
}

// accessors are the getter and setter of one wrapper field. The setter
// frees the value it replaces.
func (e *Engine) accessors(it *item, f fieldPlan, c conv) []string {
	slot := field(deref(raw("obj")), f.name)
	get := fnData{
		Attrs:  attrs(f.gate, ""),
		Export: true,
		Name:   it.name + "_get_" + f.name,
		Params: []string{"obj: *const " + it.name},
		Output: c.ffi,
		Body:   []string{Render(slot)},
	}
	set := fnData{
		Attrs:  attrs(f.gate, ""),
		Export: true,
		Name:   it.name + "_set_" + f.name,
		Params: []string{"obj: *mut " + it.name, "value: " + c.ffi},
	}
	if c.destroy != nil {
		set.Body = append(set.Body, Render(let_("old", slot)), Render(stmt{c.destroy(raw("old"))}))
	}
	set.Body = append(set.Body, Render(slot)+" = value;")
	return []string{execute(tmplFn, get), execute(tmplFn, set)}
}

func (e *Engine) destructor(it *item, ffi string) string {
	return execute(tmplFn, fnData{
		Attrs:  attrs(it.gate, ""),
		Export: true,
		Name:   it.name + "_destroy",
		Params: []string{"ffi: " + ffi},
		Body:   []string{Render(freeNonNull(raw("ffi")))},
	})
}

func (e *Engine) emitEnum(it *item) string {
	target := e.rustPath(it.def.Path)
	data := conversionData{Attrs: attrs(it.gate, ""), Name: it.name, Target: target, Enum: true}
	from := matchExpr{x: raw("ffi_ref")}
	to := matchExpr{x: raw("obj")}
	drop := matchExpr{x: raw("self")}
	var ctors []string

	for _, v := range it.variants {
		va := inline(v.attrs)
		ffiVariant := it.name + "::" + v.name
		srcVariant := target + "::" + v.name
		var decls, binds, params []string
		var fromArgs, toArgs, ctorArgs []Expr
		var fromInits, toInits, ctorInits []fieldInit
		var destroys []Expr
		for i, f := range v.fields {
			c := e.fieldConv(it, f, v.name+"."+f.name)
			bind := f.name
			if v.tuple {
				bind = ffiField(i)
				decls = append(decls, c.ffi)
			} else {
				decls = append(decls, f.name+": "+c.ffi)
			}
			binds = append(binds, bind)
			params = append(params, bind+": "+c.ffi)
			fromArgs = append(fromArgs, c.from(deref(raw(bind))))
			toArgs = append(toArgs, c.to(raw(bind)))
			ctorArgs = append(ctorArgs, raw(bind))
			fromInits = append(fromInits, fieldInit{name: f.name, value: c.from(deref(raw(bind)))})
			toInits = append(toInits, fieldInit{name: f.name, value: c.to(raw(bind))})
			ctorInits = append(ctorInits, fieldInit{name: f.name, value: raw(bind)})
			if c.destroy != nil {
				destroys = append(destroys, stmt{c.destroy(deref(raw(bind)))})
			}
		}

		decl := v.name
		ffiPat, srcPat := ffiVariant, srcVariant
		var fromBody, toBody, ctorBody Expr = raw(srcVariant), raw(ffiVariant), raw(ffiVariant)
		switch {
		case v.unit:
			if v.discrim != "" {
				decl += " = " + v.discrim
			}
		case v.tuple:
			decl += "(" + strings.Join(decls, ", ") + ")"
			ffiPat += "(" + strings.Join(binds, ", ") + ")"
			srcPat += "(" + strings.Join(binds, ", ") + ")"
			fromBody = tupleExpr{path: srcVariant, elems: fromArgs}
			toBody = tupleExpr{path: ffiVariant, elems: toArgs}
			ctorBody = tupleExpr{path: ffiVariant, elems: ctorArgs}
		default:
			decl += " { " + strings.Join(decls, ", ") + " }"
			ffiPat += " { " + strings.Join(binds, ", ") + " }"
			srcPat += " { " + strings.Join(binds, ", ") + " }"
			fromBody = structExpr{path: srcVariant, fields: fromInits}
			toBody = structExpr{path: ffiVariant, fields: toInits}
			ctorBody = structExpr{path: ffiVariant, fields: ctorInits}
		}
		data.Variants = append(data.Variants, variantDecl{Attrs: attrs(v.attrs, "    "), Decl: decl})
		from.arms = append(from.arms, matchArm{attrs: va, pat: ffiPat, body: fromBody})
		to.arms = append(to.arms, matchArm{attrs: va, pat: srcPat, body: toBody})
		drop.arms = append(drop.arms, matchArm{attrs: va, pat: ffiPat, body: blockExpr{stmts: destroys}})

		ctors = append(ctors, execute(tmplFn, fnData{
			Attrs:  attrs(it.gate.Merge(v.attrs), ""),
			Export: true,
			Name:   it.name + "_" + v.name + "_ctor",
			Params: params,
			Output: "*mut " + it.name,
			Body:   []string{Render(boxed(ctorBody))},
		}))
	}
	from.arms = append(from.arms, matchArm{pat: "_", body: call("unreachable!", str("This is unreachable"))})
	to.arms = append(to.arms, matchArm{pat: "_", body: call("unreachable!", str("Enum Variant unreachable"))})
	drop.arms = append(drop.arms, matchArm{pat: "_", body: blockExpr{}})

	data.From = Render(from)
	data.To = Render(boxed(to))
	data.Drop = []string{Render(drop)}

	var b strings.Builder
	b.WriteString(execute(tmplConversion, data))
	for _, c := range ctors {
		b.WriteString(c)
	}
	b.WriteString(e.destructor(it, "*mut "+it.name))
	return b.String()
}

func (e *Engine) emitAlias(it *item) string {
	target := e.rustPath(it.def.Path)
	f := it.fields[0]
	c := e.fieldConv(it, f, f.name)
	data := conversionData{
		Attrs:  attrs(it.gate, ""),
		Name:   it.name,
		Target: target,
		Fields: []fieldDecl{{Name: f.name, Type: c.ffi}},
		From:   Render(c.from(field(raw("ffi_ref"), f.name))),
		To:     Render(boxed(structExpr{path: it.name, fields: []fieldInit{{name: f.name, value: c.to(raw("obj"))}}})),
	}
	if c.destroy != nil {
		data.Drop = []string{Render(stmt{c.destroy(field(raw("self"), f.name))})}
	}
	var b strings.Builder
	b.WriteString(execute(tmplConversion, data))
	b.WriteString(execute(tmplFn, fnData{
		Attrs:  data.Attrs,
		Export: true,
		Name:   it.name + "_ctor",
		Params: []string{f.name + ": " + c.ffi},
		Output: "*mut " + it.name,
		Body:   []string{Render(boxed(structExpr{path: it.name, fields: []fieldInit{{name: f.name, value: raw(f.name)}}}))},
	}))
	b.WriteString(e.destructor(it, "*mut "+it.name))
	return b.String()
}

// emitOpaque exposes an item only through a pointer to the Rust value: a
// constructor when every field is reachable, and a destructor.
func (e *Engine) emitOpaque(it *item) {
	target := e.rustPath(it.def.Path)
	var b strings.Builder
	if it.def.Item.Kind == syntax.StructItem && e.constructible(it) {
		var params []string
		var inits []fieldInit
		for _, f := range it.fields {
			c := e.conv(f.obj, site{top: true, attrs: f.gate, loc: f.loc})
			own := inline(it.own(f))
			name := f.name
			params = append(params, own+name+": "+c.ffi)
			inits = append(inits, fieldInit{attrs: own, name: f.access, value: c.from(raw(name))})
		}
		var value Expr = raw(target)
		if !it.def.Item.Unit || len(it.fields) > 0 {
			value = structExpr{path: target, fields: inits}
		}
		b.WriteString(execute(tmplFn, fnData{
			Attrs:  attrs(it.gate, ""),
			Export: true,
			Name:   it.name + "_ctor",
			Params: params,
			Output: "*mut " + target,
			Body:   []string{Render(boxed(value))},
		}))
	}
	b.WriteString(e.destructor(it, "*mut "+target))
	e.place(it.def.Path.Parent(), b.String())
	e.names = append(e.names, it.name)
}

func (e *Engine) constructible(it *item) bool {
	for _, f := range it.fields {
		if !f.public || f.obj.Kind.Ref.IsRef() {
			return false
		}
	}
	return true
}
