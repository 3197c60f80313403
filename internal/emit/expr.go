package emit

import (
	"strings"
)

// Expr is a Rust expression. Conversion bodies are composed as trees and
// rendered once, so nesting never produces unbalanced text.
type Expr interface {
	write(b *strings.Builder)
}

// Render returns the source text of e.
func Render(e Expr) string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

type raw string

func (r raw) write(b *strings.Builder) { b.WriteString(string(r)) }

type callExpr struct {
	fn   Expr
	args []Expr
}

func (c callExpr) write(b *strings.Builder) {
	c.fn.write(b)
	writeArgs(b, c.args)
}

func writeArgs(b *strings.Builder, args []Expr) {
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.write(b)
	}
	b.WriteByte(')')
}

type methodExpr struct {
	recv Expr
	name string
	args []Expr
}

func (m methodExpr) write(b *strings.Builder) {
	operand(b, m.recv)
	b.WriteByte('.')
	b.WriteString(m.name)
	writeArgs(b, m.args)
}

type fieldExpr struct {
	recv Expr
	name string
}

func (f fieldExpr) write(b *strings.Builder) {
	operand(b, f.recv)
	b.WriteByte('.')
	b.WriteString(f.name)
}

type unaryExpr struct {
	op string
	x  Expr
}

func (u unaryExpr) write(b *strings.Builder) {
	b.WriteString(u.op)
	if _, ok := u.x.(unaryExpr); ok {
		u.x.write(b)
		return
	}
	operand(b, u.x)
}

type castExpr struct {
	x  Expr
	ty string
}

func (c castExpr) write(b *strings.Builder) {
	operand(b, c.x)
	b.WriteString(" as ")
	b.WriteString(c.ty)
}

type ifExpr struct {
	cond Expr
	then Expr
	els  Expr
}

func (i ifExpr) write(b *strings.Builder) {
	b.WriteString("if ")
	i.cond.write(b)
	b.WriteString(" { ")
	i.then.write(b)
	b.WriteString(" }")
	if i.els != nil {
		b.WriteString(" else { ")
		i.els.write(b)
		b.WriteString(" }")
	}
}

// stmt is an expression or declaration terminated by a semicolon.
type stmt struct {
	x Expr
}

func (s stmt) write(b *strings.Builder) {
	s.x.write(b)
	b.WriteByte(';')
}

type letExpr struct {
	pat   string
	value Expr
}

func (l letExpr) write(b *strings.Builder) {
	b.WriteString("let ")
	b.WriteString(l.pat)
	b.WriteString(" = ")
	l.value.write(b)
	b.WriteByte(';')
}

type blockExpr struct {
	unsafe bool
	stmts  []Expr
	tail   Expr
}

func (k blockExpr) write(b *strings.Builder) {
	if k.unsafe {
		b.WriteString("unsafe ")
	}
	b.WriteString("{ ")
	for _, s := range k.stmts {
		s.write(b)
		b.WriteByte(' ')
	}
	if k.tail != nil {
		k.tail.write(b)
		b.WriteByte(' ')
	}
	b.WriteByte('}')
}

type closureExpr struct {
	move   bool
	params []string
	body   Expr
}

func (c closureExpr) write(b *strings.Builder) {
	if c.move {
		b.WriteString("move ")
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(c.params, ", "))
	b.WriteString("| ")
	c.body.write(b)
}

type fieldInit struct {
	attrs string
	name  string
	value Expr
}

type structExpr struct {
	path   string
	fields []fieldInit
}

func (s structExpr) write(b *strings.Builder) {
	b.WriteString(s.path)
	b.WriteString(" {")
	for i, f := range s.fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte(' ')
		b.WriteString(f.attrs)
		b.WriteString(f.name)
		if f.value != nil {
			if r, ok := f.value.(raw); !ok || string(r) != f.name {
				b.WriteString(": ")
				f.value.write(b)
			}
		}
	}
	if len(s.fields) > 0 {
		b.WriteByte(' ')
	}
	b.WriteByte('}')
}

type tupleExpr struct {
	path  string
	elems []Expr
}

func (t tupleExpr) write(b *strings.Builder) {
	b.WriteString(t.path)
	writeArgs(b, t.elems)
}

type matchArm struct {
	attrs string
	pat   string
	body  Expr
}

type matchExpr struct {
	x    Expr
	arms []matchArm
}

func (m matchExpr) write(b *strings.Builder) {
	b.WriteString("match ")
	m.x.write(b)
	b.WriteString(" {")
	for _, a := range m.arms {
		b.WriteByte(' ')
		b.WriteString(a.attrs)
		b.WriteString(a.pat)
		b.WriteString(" => ")
		a.body.write(b)
		b.WriteByte(',')
	}
	b.WriteString(" }")
}

// operand writes x, parenthesized when it would otherwise bind looser than
// a postfix or prefix operator applied to it.
func operand(b *strings.Builder, x Expr) {
	switch x.(type) {
	case unaryExpr, castExpr, ifExpr, closureExpr, matchExpr:
		b.WriteByte('(')
		x.write(b)
		b.WriteByte(')')
	default:
		x.write(b)
	}
}

func call(fn string, args ...Expr) Expr { return callExpr{fn: raw(fn), args: args} }

func method(recv Expr, name string, args ...Expr) Expr {
	return methodExpr{recv: recv, name: name, args: args}
}

func field(recv Expr, name string) Expr { return fieldExpr{recv: recv, name: name} }

func deref(x Expr) Expr { return unaryExpr{op: "*", x: x} }

func ref(x Expr) Expr { return unaryExpr{op: "&", x: x} }

func refMut(x Expr) Expr { return unaryExpr{op: "&mut ", x: x} }

func not(x Expr) Expr { return unaryExpr{op: "!", x: x} }

func cast(x Expr, ty string) Expr { return castExpr{x: x, ty: ty} }

func isNull(x Expr) Expr { return method(x, "is_null") }

func block(tail Expr, stmts ...Expr) Expr { return blockExpr{stmts: stmts, tail: tail} }

func unsafeBlock(tail Expr, stmts ...Expr) Expr {
	return blockExpr{unsafe: true, stmts: stmts, tail: tail}
}

func let_(pat string, value Expr) Expr { return letExpr{pat: pat, value: value} }

func closure(body Expr, params ...string) Expr { return closureExpr{params: params, body: body} }

func moveClosure(body Expr, params ...string) Expr {
	return closureExpr{move: true, params: params, body: body}
}

func ifElse(cond, then, els Expr) Expr { return ifExpr{cond: cond, then: then, els: els} }

func when(cond, then Expr) Expr { return ifExpr{cond: cond, then: then} }

var (
	nullMut = call("std::ptr::null_mut")
	none    = raw("None")
)

func some(x Expr) Expr { return call("Some", x) }

func boxed(x Expr) Expr { return call("ferment::boxed", x) }

func unboxAny(x Expr) Expr { return call("ferment::unbox_any", x) }

// freeNonNull releases the boxed wrapper x; a null x is left alone.
func freeNonNull(x Expr) Expr { return when(not(isNull(x)), stmt{unboxAny(x)}) }

func str(s string) Expr { return raw(`"` + s + `"`) }

// traitCall is `<P as ferment::Trait<T>>::method(args)`.
func traitCall(ffi, trait, target, fn string, args ...Expr) Expr {
	return call("<"+ffi+" as ferment::"+trait+"<"+target+">>::"+fn, args...)
}
