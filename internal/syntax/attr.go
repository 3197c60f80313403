package syntax

import (
	"strings"
)

// Attribute is one `#[path(args)]` or `#[path = value]` expression.
// Args and Value keep their source text with whitespace collapsed.
type Attribute struct {
	Path    string
	Args    string
	HasArgs bool
	Value   string
	Inner   bool
}

// Name returns the final path segment.
func (a Attribute) Name() string {
	if i := strings.LastIndex(a.Path, "::"); i >= 0 {
		return a.Path[i+2:]
	}
	return a.Path
}

// Meta renders the attribute without the surrounding `#[...]`.
func (a Attribute) Meta() string {
	switch {
	case a.HasArgs:
		return a.Path + "(" + a.Args + ")"
	case a.Value != "":
		return a.Path + " = " + a.Value
	}
	return a.Path
}

func (a Attribute) String() string {
	if a.Inner {
		return "#![" + a.Meta() + "]"
	}
	return "#[" + a.Meta() + "]"
}

// IsCfg reports a conditional-compilation attribute.
func (a Attribute) IsCfg() bool { return a.Path == "cfg" }

// Attributes is an ordered attribute list.
type Attributes []Attribute

// Cfg returns the conditional-compilation subset.
func (as Attributes) Cfg() Attributes {
	var out Attributes
	for _, a := range as {
		if a.IsCfg() {
			out = append(out, a)
		}
	}
	return out
}

// CfgPredicates returns the predicate text of every cfg attribute.
func (as Attributes) CfgPredicates() []string {
	var out []string
	for _, a := range as {
		if a.IsCfg() {
			out = append(out, a.Args)
		}
	}
	return out
}

// Merge returns the union of as and other, coalescing attributes that render
// identically. Order of first appearance is kept.
func (as Attributes) Merge(other Attributes) Attributes {
	seen := make(map[string]bool, len(as)+len(other))
	out := make(Attributes, 0, len(as)+len(other))
	for _, list := range []Attributes{as, other} {
		for _, a := range list {
			k := a.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, a)
		}
	}
	return out
}

// Find returns the first attribute whose path matches one of the names.
func (as Attributes) Find(paths ...string) (Attribute, bool) {
	for _, a := range as {
		for _, p := range paths {
			if a.Path == p {
				return a, true
			}
		}
	}
	return Attribute{}, false
}

// Has reports whether any attribute matches one of the paths.
func (as Attributes) Has(paths ...string) bool {
	_, ok := as.Find(paths...)
	return ok
}

// Render joins the attributes one per line with the given indent.
func (as Attributes) Render(indent string) string {
	var b strings.Builder
	for _, a := range as {
		b.WriteString(indent)
		b.WriteString(a.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseAttribute parses the text of an attribute item, with or without the
// surrounding `#[...]`.
func ParseAttribute(text string) (Attribute, error) {
	s := strings.TrimSpace(text)
	var attr Attribute
	if strings.HasPrefix(s, "#!") {
		attr.Inner = true
		s = s[2:]
	} else {
		s = strings.TrimPrefix(s, "#")
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}
	p, err := newParser(s)
	if err != nil {
		return attr, err
	}
	path, err := p.parseSimplePath()
	if err != nil {
		return attr, err
	}
	attr.Path = path
	switch tok := p.peek(); {
	case tok.is("("):
		open := p.next()
		closeTok, err := p.skipBalanced(open)
		if err != nil {
			return attr, err
		}
		attr.HasArgs = true
		attr.Args = collapse(s[open.end:closeTok.pos])
	case tok.is("="):
		eq := p.next()
		attr.Value = collapse(s[eq.end:])
		p.pos = len(p.toks) - 1
	}
	if !p.peek().isEOF() {
		return attr, p.errorf("unexpected %q after attribute", p.peek().text)
	}
	return attr, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
