package syntax

import (
	"fmt"
	"strings"
)

type parser struct {
	src  string
	toks []token
	pos  int
}

func newParser(src string) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &parser{src: src, toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekN(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(punct string) bool {
	if p.peek().is(punct) {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptIdent(name string) bool {
	if p.peek().isIdent(name) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(punct string) error {
	if !p.accept(punct) {
		return p.errorf("expected %q, found %q", punct, p.peek().text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) done() error {
	if !p.peek().isEOF() {
		return p.errorf("unexpected %q", p.peek().text)
	}
	return nil
}

// skipBalanced consumes tokens up to the delimiter matching open and returns
// the closing token.
func (p *parser) skipBalanced(open token) (token, error) {
	pairs := map[string]string{"(": ")", "[": "]", "{": "}"}
	stack := []string{pairs[open.text]}
	for {
		t := p.next()
		switch {
		case t.isEOF():
			return t, &SyntaxError{Offset: open.pos, Msg: "unbalanced " + open.text}
		case t.kind != tokPunct:
		case pairs[t.text] != "":
			stack = append(stack, pairs[t.text])
		case t.text == stack[len(stack)-1]:
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return t, nil
			}
		}
	}
}

// ParseType parses a single type expression.
func ParseType(src string) (*Type, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	return t, p.done()
}

// MustParseType is ParseType for literals known to be valid.
func MustParseType(src string) *Type {
	t, err := ParseType(src)
	if err != nil {
		panic(fmt.Sprintf("syntax: parsing %q: %v", src, err))
	}
	return t
}

// ParsePath parses a type-position path.
func ParsePath(src string) (Path, error) {
	p, err := newParser(src)
	if err != nil {
		return Path{}, err
	}
	path, err := p.parsePath()
	if err != nil {
		return Path{}, err
	}
	return path, p.done()
}

// ParseBounds parses a `+`-separated bound list.
func ParseBounds(src string) ([]Bound, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	p.accept(":")
	bounds, err := p.parseBounds()
	if err != nil {
		return nil, err
	}
	return bounds, p.done()
}

// ParseGenerics parses a `<...>` parameter list.
func ParseGenerics(src string) (Generics, error) {
	p, err := newParser(src)
	if err != nil {
		return Generics{}, err
	}
	g, err := p.parseGenericParams()
	if err != nil {
		return Generics{}, err
	}
	return g, p.done()
}

// ParseWhere parses a where clause, with or without the leading keyword.
func ParseWhere(src string) ([]WherePredicate, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	p.acceptIdent("where")
	var preds []WherePredicate
	for !p.peek().isEOF() && !p.peek().is("{") && !p.peek().is(";") {
		pred, err := p.parseWherePredicate()
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
		if !p.accept(",") {
			break
		}
	}
	return preds, nil
}

// ParseUseTree parses the argument of a `use` declaration.
func ParseUseTree(src string) (*UseTree, error) {
	p, err := newParser(strings.TrimSuffix(strings.TrimSpace(src), ";"))
	if err != nil {
		return nil, err
	}
	t, err := p.parseUseTree()
	if err != nil {
		return nil, err
	}
	return t, p.done()
}

func (p *parser) parseSimplePath() (string, error) {
	var parts []string
	if p.accept("::") {
		parts = append(parts, "")
	}
	for {
		t := p.next()
		if t.kind != tokIdent {
			return "", &SyntaxError{Offset: t.pos, Msg: fmt.Sprintf("expected identifier, found %q", t.text)}
		}
		parts = append(parts, t.text)
		if !p.accept("::") {
			break
		}
	}
	return strings.Join(parts, "::"), nil
}

func (p *parser) parseType() (*Type, error) {
	t := p.peek()
	switch {
	case t.is("&"):
		p.next()
		ref := &Type{Kind: RefType}
		if p.peek().kind == tokLifetime {
			ref.Lifetime = p.next().text
		}
		ref.Mutable = p.acceptIdent("mut")
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ref.Elem = elem
		return ref, nil
	case t.is("*"):
		p.next()
		ptr := &Type{Kind: PtrType}
		switch {
		case p.acceptIdent("mut"):
			ptr.Mutable = true
		case p.acceptIdent("const"):
		default:
			return nil, p.errorf("expected mut or const after *")
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ptr.Elem = elem
		return ptr, nil
	case t.is("["):
		p.next()
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if p.accept("]") {
			return &Type{Kind: SliceType, Elem: elem}, nil
		}
		if err := p.expect(";"); err != nil {
			return nil, err
		}
		start := p.peek().pos
		end := start
		depth := 0
		for {
			tok := p.peek()
			if tok.isEOF() {
				return nil, p.errorf("unterminated array type")
			}
			if depth == 0 && tok.is("]") {
				break
			}
			switch {
			case tok.is("("), tok.is("["), tok.is("{"):
				depth++
			case tok.is(")"), tok.is("]"), tok.is("}"):
				depth--
			}
			end = p.next().end
		}
		p.next()
		if end == start {
			return nil, p.errorf("missing array length")
		}
		return &Type{Kind: ArrayType, Elem: elem, Len: collapse(p.src[start:end])}, nil
	case t.is("("):
		p.next()
		tup := &Type{Kind: TupleType}
		for !p.peek().is(")") {
			elem, err := p.parseType()
			if err != nil {
				return nil, err
			}
			tup.Elems = append(tup.Elems, elem)
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return tup, nil
	case t.is("!"):
		p.next()
		return &Type{Kind: NeverType}, nil
	case t.isIdent("_"):
		p.next()
		return &Type{Kind: InferType}, nil
	case t.isIdent("dyn"):
		p.next()
		bounds, err := p.parseBounds()
		if err != nil {
			return nil, err
		}
		return &Type{Kind: DynType, Bounds: bounds}, nil
	case t.isIdent("impl"):
		p.next()
		bounds, err := p.parseBounds()
		if err != nil {
			return nil, err
		}
		return &Type{Kind: ImplType, Bounds: bounds}, nil
	case t.isIdent("fn"), t.isIdent("unsafe"), t.isIdent("extern"), t.isIdent("for"):
		return p.parseFnType()
	case t.is("<"):
		return p.parseQualifiedPath()
	case t.kind == tokIdent, t.is("::"):
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return PathOf(path), nil
	}
	return nil, p.errorf("unexpected %q in type", t.text)
}

func (p *parser) skipForLifetimes() error {
	if !p.acceptIdent("for") {
		return nil
	}
	if err := p.expect("<"); err != nil {
		return err
	}
	for !p.peek().is(">") {
		if p.peek().isEOF() {
			return p.errorf("unterminated for<>")
		}
		p.next()
	}
	p.next()
	return nil
}

func (p *parser) parseFnType() (*Type, error) {
	if err := p.skipForLifetimes(); err != nil {
		return nil, err
	}
	fn := &Type{Kind: FnType}
	fn.Unsafe = p.acceptIdent("unsafe")
	if p.acceptIdent("extern") {
		fn.Abi = "C"
		if p.peek().kind == tokLiteral {
			fn.Abi = strings.Trim(p.next().text, `"`)
		}
	}
	if !p.acceptIdent("fn") {
		return nil, p.errorf("expected fn")
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	for !p.peek().is(")") {
		// named parameters: `fn(x: u32)`
		if p.peek().kind == tokIdent && p.peekN(1).is(":") && !p.peekN(1).is("::") {
			p.next()
			p.next()
		}
		in, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Inputs = append(fn.Inputs, in)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	out, err := p.parseReturn()
	if err != nil {
		return nil, err
	}
	fn.Output = out
	return fn, nil
}

// parseReturn parses an optional `-> T`, normalizing `-> ()` to nil.
func (p *parser) parseReturn() (*Type, error) {
	if !p.accept("->") {
		return nil, nil
	}
	out, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if out.IsUnit() {
		return nil, nil
	}
	return out, nil
}

func (p *parser) parseQualifiedPath() (*Type, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	self, err := p.parseType()
	if err != nil {
		return nil, err
	}
	q := &QSelf{Type: self}
	if p.acceptIdent("as") {
		tr, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		q.Trait = &tr
	}
	if err := p.expect(">"); err != nil {
		return nil, err
	}
	if err := p.expect("::"); err != nil {
		return nil, err
	}
	rest, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	return &Type{Kind: PathType, QSelf: q, Path: rest}, nil
}

func (p *parser) parsePath() (Path, error) {
	var path Path
	path.Global = p.accept("::")
	for {
		t := p.next()
		if t.kind != tokIdent {
			return path, &SyntaxError{Offset: t.pos, Msg: fmt.Sprintf("expected identifier, found %q", t.text)}
		}
		seg := Segment{Ident: t.text}
		// turbofish
		if p.peek().is("::") && p.peekN(1).is("<") {
			p.next()
		}
		switch {
		case p.peek().is("<"):
			args, err := p.parseGenericArgs()
			if err != nil {
				return path, err
			}
			seg.Args = args
		case p.peek().is("(") && isFnTrait(seg.Ident):
			p.next()
			seg.Parenthesized = true
			for !p.peek().is(")") {
				in, err := p.parseType()
				if err != nil {
					return path, err
				}
				seg.Inputs = append(seg.Inputs, in)
				if !p.accept(",") {
					break
				}
			}
			if err := p.expect(")"); err != nil {
				return path, err
			}
			out, err := p.parseReturn()
			if err != nil {
				return path, err
			}
			seg.Output = out
		}
		path.Segments = append(path.Segments, seg)
		if !p.peek().is("::") || p.peekN(1).kind != tokIdent {
			break
		}
		p.next()
	}
	return path, nil
}

func isFnTrait(ident string) bool {
	switch ident {
	case "Fn", "FnMut", "FnOnce":
		return true
	}
	return false
}

func (p *parser) parseGenericArgs() ([]GenericArg, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	var args []GenericArg
	for !p.peek().is(">") {
		arg, err := p.parseGenericArg()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(">"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseGenericArg() (GenericArg, error) {
	t := p.peek()
	switch {
	case t.kind == tokLifetime:
		p.next()
		return GenericArg{Lifetime: t.text}, nil
	case t.kind == tokLiteral:
		p.next()
		return GenericArg{Const: t.text}, nil
	case t.is("-") && p.peekN(1).kind == tokLiteral:
		p.next()
		return GenericArg{Const: "-" + p.next().text}, nil
	case t.is("{"):
		open := p.next()
		closeTok, err := p.skipBalanced(open)
		if err != nil {
			return GenericArg{}, err
		}
		return GenericArg{Const: collapse(p.src[open.pos:closeTok.end])}, nil
	case t.kind == tokIdent && p.peekN(1).is("="):
		p.next()
		p.next()
		ty, err := p.parseType()
		if err != nil {
			return GenericArg{}, err
		}
		return GenericArg{Binding: t.text, Type: ty}, nil
	case t.kind == tokIdent && p.peekN(1).is(":"):
		// associated type constraint `Item: Bound`, kept as a binding to
		// an impl type.
		p.next()
		p.next()
		bounds, err := p.parseBounds()
		if err != nil {
			return GenericArg{}, err
		}
		return GenericArg{Binding: t.text, Type: &Type{Kind: ImplType, Bounds: bounds}}, nil
	}
	ty, err := p.parseType()
	if err != nil {
		return GenericArg{}, err
	}
	return GenericArg{Type: ty}, nil
}

func (p *parser) parseBounds() ([]Bound, error) {
	var bounds []Bound
	for {
		t := p.peek()
		switch {
		case t.kind == tokLifetime:
			p.next()
			bounds = append(bounds, Bound{Lifetime: t.text})
		case t.is("("):
			p.next()
			inner, err := p.parseBounds()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			bounds = append(bounds, inner...)
		default:
			if err := p.skipForLifetimes(); err != nil {
				return nil, err
			}
			b := Bound{Maybe: p.accept("?")}
			p.accept("~")
			p.acceptIdent("const")
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			b.Path = path
			bounds = append(bounds, b)
		}
		if !p.accept("+") {
			return bounds, nil
		}
		if nt := p.peek(); nt.isEOF() || nt.is(",") || nt.is(">") || nt.is("{") || nt.is(")") {
			return bounds, nil
		}
	}
}

func (p *parser) parseGenericParams() (Generics, error) {
	var g Generics
	if err := p.expect("<"); err != nil {
		return g, err
	}
	for !p.peek().is(">") {
		// attributes on generic params are ignored
		for p.peek().is("#") {
			p.next()
			open := p.next()
			if !open.is("[") {
				return g, p.errorf("malformed attribute")
			}
			if _, err := p.skipBalanced(open); err != nil {
				return g, err
			}
		}
		var gp GenericParam
		t := p.next()
		switch {
		case t.kind == tokLifetime:
			gp.Name = t.text
			gp.Lifetime = true
			if p.accept(":") {
				for p.peek().kind == tokLifetime {
					gp.Bounds = append(gp.Bounds, Bound{Lifetime: p.next().text})
					if !p.accept("+") {
						break
					}
				}
			}
		case t.isIdent("const"):
			name := p.next()
			gp.Name = name.text
			gp.Const = true
			if err := p.expect(":"); err != nil {
				return g, err
			}
			ty, err := p.parseType()
			if err != nil {
				return g, err
			}
			gp.Type = ty
			if p.accept("=") {
				arg, err := p.parseGenericArg()
				if err != nil {
					return g, err
				}
				gp.Default = arg.Type
			}
		case t.kind == tokIdent:
			gp.Name = t.text
			if p.accept(":") && !p.peek().is(">") && !p.peek().is(",") && !p.peek().is("=") {
				bounds, err := p.parseBounds()
				if err != nil {
					return g, err
				}
				gp.Bounds = bounds
			}
			if p.accept("=") {
				def, err := p.parseType()
				if err != nil {
					return g, err
				}
				gp.Default = def
			}
		default:
			return g, &SyntaxError{Offset: t.pos, Msg: fmt.Sprintf("unexpected %q in generic parameters", t.text)}
		}
		g.Params = append(g.Params, gp)
		if !p.accept(",") {
			break
		}
	}
	return g, p.expect(">")
}

func (p *parser) parseWherePredicate() (WherePredicate, error) {
	var pred WherePredicate
	if p.peek().kind == tokLifetime {
		pred.Lifetime = p.next().text
		if err := p.expect(":"); err != nil {
			return pred, err
		}
		for p.peek().kind == tokLifetime {
			pred.Bounds = append(pred.Bounds, Bound{Lifetime: p.next().text})
			if !p.accept("+") {
				break
			}
		}
		return pred, nil
	}
	if err := p.skipForLifetimes(); err != nil {
		return pred, err
	}
	ty, err := p.parseType()
	if err != nil {
		return pred, err
	}
	pred.Type = ty
	if err := p.expect(":"); err != nil {
		return pred, err
	}
	if nt := p.peek(); nt.isEOF() || nt.is(",") || nt.is("{") {
		return pred, nil
	}
	bounds, err := p.parseBounds()
	if err != nil {
		return pred, err
	}
	pred.Bounds = bounds
	return pred, nil
}

func (p *parser) parseUseTree() (*UseTree, error) {
	tree := &UseTree{}
	if p.accept("::") {
		tree.Global = true
	}
	for {
		t := p.peek()
		switch {
		case t.is("*"):
			p.next()
			tree.Kind = UseGlob
			return tree, nil
		case t.is("{"):
			p.next()
			tree.Kind = UseGroup
			for !p.peek().is("}") {
				child, err := p.parseUseTree()
				if err != nil {
					return nil, err
				}
				tree.Items = append(tree.Items, child)
				if !p.accept(",") {
					break
				}
			}
			return tree, p.expect("}")
		case t.kind == tokIdent:
			p.next()
			if p.accept("::") {
				tree.Prefix = append(tree.Prefix, t.text)
				continue
			}
			tree.Kind = UseName
			tree.Name = t.text
			if p.acceptIdent("as") {
				alias := p.next()
				if alias.kind != tokIdent {
					return nil, &SyntaxError{Offset: alias.pos, Msg: "expected identifier after as"}
				}
				tree.Kind = UseRename
				tree.Rename = alias.text
			}
			return tree, nil
		default:
			return nil, p.errorf("unexpected %q in use tree", t.text)
		}
	}
}
