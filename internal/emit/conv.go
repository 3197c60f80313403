package emit

import (
	"fmt"

	"github.com/pankcuf/ferment-sub004/internal/classify"
	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

const cChar = "std::os::raw::c_char"

// conv is the FFI form of one Rust type and the expressions that move a
// value across the boundary. from turns an FFI value into the Rust value
// without taking ownership of it; to allocates a new FFI value; destroy
// frees one and is nil when there is nothing to free.
type conv struct {
	ffi     string
	source  string
	from    func(Expr) Expr
	to      func(Expr) Expr
	destroy func(Expr) Expr

	// value: the FFI form is the value itself, not a pointer.
	value bool
	// opaque: the FFI form points at the Rust value.
	opaque bool
	// complex: from, to and destroy go through the conversion traits of
	// ffiPath.
	complex bool
	ffiPath string
	// trait: a trait object; to expects a Box<dyn Trait>.
	trait bool
	// str: the Rust value is a borrowed &str.
	str bool
}

// site is where a conversion is needed: top is false inside generic
// arguments and callbacks, attrs gate the instantiations it registers.
type site struct {
	top   bool
	attrs syntax.Attributes
	loc   diag.Location
}

func (s site) nested() site {
	s.top = false
	return s
}

func same(x Expr) Expr { return x }

func identity(ty string) conv {
	return conv{ffi: ty, source: ty, value: true, from: same, to: same}
}

func complexConv(ffiPath, target string) conv {
	return conv{
		ffi:     "*mut " + ffiPath,
		source:  target,
		complex: true,
		ffiPath: ffiPath,
		from: func(x Expr) Expr {
			return traitCall(ffiPath, "FFIConversionFrom", target, "ffi_from", x)
		},
		to: func(v Expr) Expr {
			return traitCall(ffiPath, "FFIConversionTo", target, "ffi_to", v)
		},
		destroy: func(x Expr) Expr {
			return traitCall(ffiPath, "FFIConversionDestroy", target, "destroy", x)
		},
	}
}

func opaqueConv(source string) conv {
	return conv{
		ffi:     "*mut " + source,
		source:  source,
		opaque:  true,
		from:    func(x Expr) Expr { return method(ref(deref(x)), "clone") },
		to:      boxed,
		destroy: unboxAny,
	}
}

// rawArray passes a primitive array through a pointer to the array itself.
func rawArray(source string) conv {
	return conv{
		ffi:     "*mut " + source,
		source:  source,
		from:    deref,
		to:      boxed,
		destroy: unboxAny,
	}
}

// boxedValue turns a by-value form into a nullable pointer form.
func boxedValue(c conv) conv {
	if !c.value {
		return c
	}
	inner := c
	return conv{
		ffi:     "*mut " + c.ffi,
		source:  c.source,
		from:    func(x Expr) Expr { return inner.from(deref(x)) },
		to:      func(v Expr) Expr { return boxed(inner.to(v)) },
		destroy: unboxAny,
	}
}

// optionOf is the nullable form of c; null stands for None.
func optionOf(c conv, source string) conv {
	if c.value {
		inner := c
		return conv{
			ffi:    "*mut " + c.ffi,
			source: source,
			from: func(x Expr) Expr {
				return ifElse(isNull(x), none, some(inner.from(deref(x))))
			},
			to: func(v Expr) Expr {
				return matchExpr{x: v, arms: []matchArm{
					{pat: "Some(o)", body: boxed(inner.to(raw("o")))},
					{pat: "None", body: nullMut},
				}}
			},
			destroy: freeNonNull,
		}
	}
	out := conv{
		ffi:    c.ffi,
		source: source,
		from: func(x Expr) Expr {
			return ifElse(isNull(x), none, some(c.from(x)))
		},
		to: func(v Expr) Expr {
			return matchExpr{x: v, arms: []matchArm{
				{pat: "Some(o)", body: c.to(raw("o"))},
				{pat: "None", body: nullMut},
			}}
		},
	}
	if c.destroy != nil {
		out.destroy = func(x Expr) Expr { return when(not(isNull(x)), stmt{c.destroy(x)}) }
	}
	return out
}

var pointerPaths = map[model.SmartPointer]string{
	model.BoxPtr:        "Box",
	model.ArcPtr:        "std::sync::Arc",
	model.RcPtr:         "std::rc::Rc",
	model.CowPtr:        "std::borrow::Cow",
	model.CellPtr:       "std::cell::Cell",
	model.RefCellPtr:    "std::cell::RefCell",
	model.MutexPtr:      "std::sync::Mutex",
	model.RwLockPtr:     "std::sync::RwLock",
	model.OnceLockPtr:   "std::sync::OnceLock",
	model.UnsafeCellPtr: "std::cell::UnsafeCell",
	model.PinPtr:        "std::pin::Pin",
}

// conv returns the conversion of the classified type o.
func (e *Engine) conv(o model.ObjectKind, s site) conv {
	k := o.Kind
	ty := o.Type()
	if ty != nil && ty.Kind == syntax.PathType && ty.QSelf == nil {
		if c, ok := e.foreign(ty); ok {
			return c
		}
	}
	switch {
	case o.IsEmpty() || ty == nil || ty.IsUnit():
		return identity("()")
	case k.IsPrimitive():
		return identity(e.rust(ty))
	case k.IsString():
		if k.Ferm == model.FermStr {
			c := complexConv(cChar, "&str")
			c.str = true
			return c
		}
		return complexConv(cChar, "String")
	case k.Is128():
		return complexConv("[u8; 16]", e.rust(ty))
	case k.IsGroup():
		return e.generic(ty, e.rust(ty), s)
	case k.IsSmartPointer():
		return e.pointer(o, s)
	case k.Tag == model.Optional:
		return optionOf(e.conv(k.Nested(0), s), e.rust(ty))
	case k.Tag == model.Array:
		if s.top && k.Nested(0).Kind.IsPrimitive() {
			return rawArray(e.rust(ty))
		}
		return e.generic(ty, e.rust(ty), s)
	case k.Tag == model.Slice:
		return e.generic(ty, "Vec<"+e.rust(ty.Elem)+">", s)
	case k.Tag == model.Tuple:
		return e.generic(ty, e.rust(ty), s)
	case k.IsLambda():
		return e.lambda(o, s)
	case k.Tag == model.FnPointer && classify.IsExternFn(ty):
		return identity(e.rust(ty))
	case k.Tag == model.Trait:
		return e.traitObject(o, s)
	case k.Tag == model.Object:
		return e.object(o, s)
	}
	return opaqueConv(e.rust(ty))
}

func (e *Engine) foreign(ty *syntax.Type) (conv, bool) {
	entry, ok := e.index.Foreign(ty)
	if !ok {
		return conv{}, false
	}
	switch entry.Marker {
	case inventory.Register:
		return complexConv(e.rust(syntax.PathOf(entry.Path)), e.rust(ty)), true
	case inventory.Custom:
		return complexConv(e.rust(entry.FFI), e.rust(ty)), true
	}
	return conv{}, false
}

func (e *Engine) object(o model.ObjectKind, s site) conv {
	ty := o.Type()
	path := ty.Path.ArgLess()
	if it, ok := e.items[path.Key()]; ok && it.wrapped {
		return complexConv(e.itemPath(path), e.rust(ty))
	}
	if o.Item != nil && o.Item.Kind == syntax.TypeAliasItem {
		return e.conv(o.Kind.Nested(0), s)
	}
	return opaqueConv(e.rust(ty))
}

func (e *Engine) generic(ty *syntax.Type, target string, s site) conv {
	return complexConv(e.genericPath(e.require(ty, s)), target)
}

func (e *Engine) require(ty *syntax.Type, s site) string {
	if e.settled {
		return mangle.Mangle(ty.StripLifetimes())
	}
	name, err := e.cls.Require(ty, s.attrs, s.loc)
	if err != nil && e.err == nil {
		e.err = err
	}
	return name
}

func (e *Engine) pointer(o model.ObjectKind, s site) conv {
	k := o.Kind
	p := pointerPaths[k.Pointer]
	inner := k.Nested(0)
	var ic conv
	if k.Pointer == model.CowPtr && inner.Kind.IsString() {
		ic = complexConv(cChar, "String")
	} else {
		ic = e.conv(inner, s)
	}
	out := conv{
		ffi:     ic.ffi,
		source:  e.rust(o.Type()),
		value:   ic.value,
		destroy: ic.destroy,
	}
	switch k.Pointer {
	case model.BoxPtr:
		out.from = func(x Expr) Expr { return call("Box::new", ic.from(x)) }
		if ic.trait {
			out.to = ic.to
		} else {
			out.to = func(v Expr) Expr { return ic.to(deref(v)) }
		}
	case model.ArcPtr, model.RcPtr:
		if ic.opaque {
			out.from = func(x Expr) Expr {
				return block(call(p+"::from_raw", x), stmt{call(p+"::increment_strong_count", x)})
			}
			out.to = func(v Expr) Expr { return method(call(p+"::into_raw", v), "cast_mut") }
			out.destroy = func(x Expr) Expr { return call("drop", call(p+"::from_raw", x)) }
			break
		}
		out.from = func(x Expr) Expr { return call(p+"::new", ic.from(x)) }
		out.to = func(v Expr) Expr { return ic.to(method(deref(v), "clone")) }
	case model.MutexPtr, model.RwLockPtr:
		out.from = func(x Expr) Expr { return call(p+"::new", ic.from(x)) }
		out.to = func(v Expr) Expr {
			return ic.to(method(method(v, "into_inner"), "expect", str("Poisoned")))
		}
	case model.CellPtr, model.RefCellPtr, model.UnsafeCellPtr:
		out.from = func(x Expr) Expr { return call(p+"::new", ic.from(x)) }
		out.to = func(v Expr) Expr { return ic.to(method(v, "into_inner")) }
	case model.OnceLockPtr:
		opt := optionOf(ic, out.source)
		out.ffi, out.value, out.destroy = opt.ffi, false, opt.destroy
		out.from = func(x Expr) Expr {
			set := when(raw("let Some(value) = "+Render(opt.from(x))), let_("_", method(raw("lock"), "set", raw("value"))))
			return block(raw("lock"), let_("lock", call(p+"::new")), set)
		}
		out.to = func(v Expr) Expr { return opt.to(method(v, "into_inner")) }
	case model.CowPtr:
		out.from = func(x Expr) Expr { return call(p+"::Owned", ic.from(x)) }
		out.to = func(v Expr) Expr { return ic.to(method(v, "into_owned")) }
	case model.PinPtr:
		if inner.Kind.IsSmartPointer(model.BoxPtr) {
			out.from = func(x Expr) Expr { return call("Box::into_pin", ic.from(x)) }
		} else {
			out.from = func(x Expr) Expr { return call(p+"::new", ic.from(x)) }
		}
		out.to = func(v Expr) Expr { return ic.to(call(p+"::into_inner", v)) }
	}
	return out
}

// lambda converts a boxed callable through its callback wrapper. The Rust
// closure keeps a copy of the wrapper and calls back through it.
func (e *Engine) lambda(o model.ObjectKind, s site) conv {
	lt := classify.LambdaType(o.Kind)
	path := e.genericPath(e.require(lt, s))
	var params []string
	var args []Expr
	if seg := lt.Path.Last(); seg != nil {
		for i, in := range seg.Inputs {
			name := fmt.Sprintf("o_%d", i)
			params = append(params, name+": "+e.rust(in))
			args = append(args, raw(name))
		}
	}
	return conv{
		ffi:    "*mut " + path,
		source: e.rust(o.Type()),
		from: func(x Expr) Expr {
			body := unsafeBlock(method(raw("callback"), "call", args...))
			return block(moveClosure(body, params...), let_("callback", method(ref(deref(x)), "clone")))
		},
		to: func(Expr) Expr {
			return call("panic!", str("closures cannot be passed back across the boundary"))
		},
		destroy: unboxAny,
	}
}

func (e *Engine) traitObject(o model.ObjectKind, s site) conv {
	ty := o.Type()
	if len(ty.Bounds) == 0 {
		return opaqueConv(e.rust(ty))
	}
	tr, ok := e.traits[ty.Bounds[0].Path.ArgLess().Key()]
	if !ok || !tr.ok {
		e.bag.Addf(diag.UnsupportedConstruct, s.loc, ty.String(), "trait object of a trait that is not exported; emitted as an opaque pointer")
		return opaqueConv(e.rust(ty))
	}
	obj := tr.objectPath(e)
	return conv{
		ffi:     "*mut " + obj,
		source:  e.rust(ty),
		trait:   true,
		from:    func(x Expr) Expr { return method(ref(deref(x)), "clone") },
		to:      func(v Expr) Expr { return call(tr.modulePath(e)+"::"+tr.name+"_TraitObject_from_dyn", v) },
		destroy: func(x Expr) Expr { return call(tr.modulePath(e)+"::"+tr.name+"_TraitObject_destroy", x) },
	}
}

// incoming returns the FFI type of a value of o handed to Rust and the
// expression rebuilding the Rust value, honoring references.
func incoming(o model.ObjectKind, c conv) (string, func(Expr) Expr) {
	switch o.Kind.Ref {
	case model.ByRef:
		if c.opaque {
			return c.ffi, func(x Expr) Expr { return ref(deref(x)) }
		}
		if c.str {
			return c.ffi, c.from
		}
		return c.ffi, func(x Expr) Expr { return ref(c.from(x)) }
	case model.ByRefMut:
		if c.opaque {
			return c.ffi, func(x Expr) Expr { return refMut(deref(x)) }
		}
		return c.ffi, func(x Expr) Expr { return refMut(c.from(x)) }
	case model.ByConstPtr:
		if c.opaque {
			return "*const " + c.source, same
		}
		return c.ffi, func(x Expr) Expr { return cast(ref(c.from(x)), "*const _") }
	case model.ByMutPtr:
		if c.opaque {
			return c.ffi, same
		}
		return c.ffi, func(x Expr) Expr { return cast(refMut(c.from(x)), "*mut _") }
	}
	return c.ffi, c.from
}

// outgoing returns the FFI type of a value of o handed out of Rust and the
// expression producing it. Borrowed values are copied before conversion.
func outgoing(o model.ObjectKind, c conv) (string, func(Expr) Expr) {
	switch o.Kind.Ref {
	case model.ByValue:
		return c.ffi, c.to
	case model.ByConstPtr:
		if c.opaque {
			return "*const " + c.source, same
		}
	case model.ByMutPtr:
		if c.opaque {
			return c.ffi, same
		}
	}
	switch {
	case c.opaque:
		return c.ffi, func(v Expr) Expr { return cast(cast(v, "*const "+c.source), "*mut "+c.source) }
	case c.str:
		return c.ffi, c.to
	case c.value:
		return c.ffi, func(v Expr) Expr { return c.to(deref(v)) }
	case o.Kind.Tag == model.Slice:
		return c.ffi, func(v Expr) Expr { return c.to(method(v, "to_vec")) }
	}
	return c.ffi, func(v Expr) Expr { return c.to(method(v, "clone")) }
}
