package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"method on deref", method(deref(raw("x")), "clone"), "(*x).clone()"},
		{"field of deref", field(deref(raw("obj")), "id"), "(*obj).id"},
		{"reborrow", refMut(deref(raw("p"))), "&mut *p"},
		{"cast", cast(raw("n"), "usize"), "n as usize"},
		{"shorthand", structExpr{path: "S", fields: []fieldInit{{name: "a", value: raw("a")}, {name: "b", value: raw("1")}}}, "S { a, b: 1 }"},
		{"empty struct", structExpr{path: "S"}, "S {}"},
		{"tuple", tupleExpr{path: "E::V", elems: []Expr{raw("o_0"), raw("o_1")}}, "E::V(o_0, o_1)"},
		{"if else", ifElse(isNull(raw("p")), none, some(deref(raw("p")))), "if p.is_null() { None } else { Some(*p) }"},
		{"when", when(not(isNull(raw("p"))), stmt{unboxAny(raw("p"))}), "if !p.is_null() { ferment::unbox_any(p); }"},
		{"free non-null", freeNonNull(raw("ffi")), "if !ffi.is_null() { ferment::unbox_any(ffi); }"},
		{"closure", closure(call("f", raw("o")), "o"), "|o| f(o)"},
		{"match", matchExpr{x: raw("v"), arms: []matchArm{{pat: "Some(o)", body: boxed(raw("o"))}, {pat: "None", body: nullMut}}}, "match v { Some(o) => ferment::boxed(o), None => std::ptr::null_mut(), }"},
		{"block", block(raw("x"), let_("x", raw("1"))), "{ let x = 1; x }"},
		{"trait call", traitCall(cChar, "FFIConversionFrom", "String", "ffi_from", raw("p")), "<std::os::raw::c_char as ferment::FFIConversionFrom<String>>::ffi_from(p)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.expr))
		})
	}
}

func TestConversions(t *testing.T) {
	opt := optionOf(identity("u32"), "Option<u32>")
	assert.Equal(t, "*mut u32", opt.ffi)
	assert.Equal(t, "if x.is_null() { None } else { Some(*x) }", Render(opt.from(raw("x"))))
	assert.Equal(t, "match v { Some(o) => ferment::boxed(o), None => std::ptr::null_mut(), }", Render(opt.to(raw("v"))))

	c := complexConv("crate::fermented::generics::Vec_u32", "Vec<u32>")
	assert.Equal(t, "*mut crate::fermented::generics::Vec_u32", c.ffi)
	assert.Equal(t,
		"<crate::fermented::generics::Vec_u32 as ferment::FFIConversionDestroy<Vec<u32>>>::destroy(p)",
		Render(c.destroy(raw("p"))))

	o := opaqueConv("crate::Handle")
	assert.Equal(t, "(&*h).clone()", Render(o.from(raw("h"))))
	assert.True(t, o.opaque)
}

func TestIsIdent(t *testing.T) {
	for s, want := range map[string]bool{
		"value":  true,
		"_x":     true,
		"r#type": true,
		"x1":     true,
		"1x":     false,
		"_":      false,
		"self":   false,
		"(a, b)": false,
	} {
		assert.Equal(t, want, isIdent(s), s)
	}
}
