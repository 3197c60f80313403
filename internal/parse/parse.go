// Package parse converts tree-sitter Rust syntax trees into syntax items.
package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/lang"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// File parses one Rust source file. The parser must be created for Rust.
// filePath is used only for item locations and should be crate-relative.
// Type expressions that fail to parse are recorded in bag and replaced by
// the inferred type `_`, which later resolves to an opaque pointer.
func File(ctx context.Context, parser *sitter.Parser, source []byte, filePath string, bag *diag.Bag) (*syntax.File, error) {
	file := &syntax.File{Path: filePath}
	if len(source) == 0 {
		return file, nil
	}

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	w := &walker{src: source, path: filePath, bag: bag}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() == "inner_attribute_item" {
			if a, ok := w.attribute(n); ok {
				file.Attrs = append(file.Attrs, a)
			}
		}
	}
	file.Items = w.items(root)
	return file, nil
}

type walker struct {
	src  []byte
	path string
	bag  *diag.Bag
}

func (w *walker) text(n *sitter.Node) string {
	return lang.NodeText(n, w.src)
}

func (w *walker) loc(n *sitter.Node) diag.Location {
	return diag.Location{File: w.path, Line: lang.Line(n), Column: int(n.StartPoint().Column) + 1}
}

func (w *walker) fail(n *sitter.Node, what string, err error) {
	if w.bag == nil {
		return
	}
	w.bag.Add(diag.Diagnostic{
		Kind:     diag.ParseFailure,
		Severity: diag.Warning,
		Location: w.loc(n),
		Subject:  lang.CollapseWhitespace(w.text(n)),
		Message:  fmt.Sprintf("cannot parse %s: %v", what, err),
	})
}

func (w *walker) attribute(n *sitter.Node) (syntax.Attribute, bool) {
	a, err := syntax.ParseAttribute(w.text(n))
	if err != nil {
		w.fail(n, "attribute", err)
		return a, false
	}
	return a, true
}

func (w *walker) typ(n *sitter.Node) *syntax.Type {
	if n == nil {
		return nil
	}
	t, err := syntax.ParseType(w.text(n))
	if err != nil {
		w.fail(n, "type", err)
		return &syntax.Type{Kind: syntax.InferType}
	}
	return t
}

// items converts the item children of a container node, attaching
// preceding outer attributes to each item.
func (w *walker) items(container *sitter.Node) []*syntax.Item {
	var out []*syntax.Item
	var pending syntax.Attributes
	for i := 0; i < int(container.NamedChildCount()); i++ {
		n := container.NamedChild(i)
		switch n.Type() {
		case "attribute_item":
			if a, ok := w.attribute(n); ok {
				pending = append(pending, a)
			}
			continue
		case "inner_attribute_item", "line_comment", "block_comment":
			continue
		}
		if it := w.item(n); it != nil {
			it.Attrs = append(pending, it.Attrs...)
			out = append(out, it)
		}
		pending = nil
	}
	return out
}

func (w *walker) item(n *sitter.Node) *syntax.Item {
	it := &syntax.Item{File: w.path, Line: lang.Line(n), Public: w.public(n)}
	if name := n.ChildByFieldName("name"); name != nil {
		it.Name = w.text(name)
	}
	switch n.Type() {
	case "mod_item":
		it.Kind = syntax.ModItem
		if body := n.ChildByFieldName("body"); body != nil {
			it.Inline = true
			it.Items = w.items(body)
		}
	case "struct_item":
		it.Kind = syntax.StructItem
		it.Generics = w.generics(n)
		body := n.ChildByFieldName("body")
		switch {
		case body == nil:
			it.Unit = true
		case body.Type() == "ordered_field_declaration_list":
			it.Tuple = true
			it.Fields = w.orderedFields(body)
		default:
			it.Fields = w.namedFields(body)
		}
	case "enum_item":
		it.Kind = syntax.EnumItem
		it.Generics = w.generics(n)
		if body := n.ChildByFieldName("body"); body != nil {
			it.Variants = w.variants(body)
		}
	case "trait_item":
		it.Kind = syntax.TraitItem
		it.Generics = w.generics(n)
		it.Bounds = w.bounds(n.ChildByFieldName("bounds"))
		if body := n.ChildByFieldName("body"); body != nil {
			it.Items = w.items(body)
		}
	case "impl_item":
		it.Kind = syntax.ImplItem
		it.Generics = w.generics(n)
		it.SelfType = w.typ(n.ChildByFieldName("type"))
		if tr := n.ChildByFieldName("trait"); tr != nil {
			p, err := syntax.ParsePath(w.text(tr))
			if err != nil {
				w.fail(tr, "trait path", err)
			} else {
				it.Trait = &p
			}
			it.Negative = strings.Contains(w.text(n)[:tr.StartByte()-n.StartByte()], "!")
		}
		if body := n.ChildByFieldName("body"); body != nil {
			it.Items = w.items(body)
			// `type Item = ...;` in an impl body binds an associated type.
			for _, child := range it.Items {
				if child.Kind == syntax.TypeAliasItem {
					child.Kind = syntax.AssocTypeItem
				}
			}
		}
		if it.SelfType != nil {
			it.Name = it.SelfType.String()
		}
	case "function_item", "function_signature_item":
		it.Kind = syntax.FnItem
		it.Sig = w.signature(n)
		it.Generics = it.Sig.Generics
		if body := n.ChildByFieldName("body"); body != nil {
			it.Sig.HasBody = true
			it.Items = w.nestedItems(body)
		}
	case "type_item":
		it.Kind = syntax.TypeAliasItem
		it.Generics = w.generics(n)
		it.Type = w.typ(n.ChildByFieldName("type"))
	case "associated_type":
		it.Kind = syntax.AssocTypeItem
		it.Bounds = w.bounds(n.ChildByFieldName("bounds"))
		it.Type = w.typ(n.ChildByFieldName("type"))
	case "use_declaration":
		it.Kind = syntax.UseItem
		arg := n.ChildByFieldName("argument")
		if arg == nil {
			return nil
		}
		tree, err := syntax.ParseUseTree(w.text(arg))
		if err != nil {
			w.fail(arg, "use tree", err)
			return nil
		}
		it.Use = tree
	case "const_item", "static_item":
		it.Kind = syntax.ConstItem
		it.Type = w.typ(n.ChildByFieldName("type"))
	default:
		return nil
	}
	return it
}

// nestedItems collects item declarations from a fn body block.
func (w *walker) nestedItems(block *sitter.Node) []*syntax.Item {
	var out []*syntax.Item
	var pending syntax.Attributes
	for i := 0; i < int(block.NamedChildCount()); i++ {
		n := block.NamedChild(i)
		switch n.Type() {
		case "attribute_item":
			if a, ok := w.attribute(n); ok {
				pending = append(pending, a)
			}
			continue
		case "struct_item", "enum_item", "trait_item", "impl_item", "function_item", "type_item", "use_declaration", "mod_item":
			if it := w.item(n); it != nil {
				it.Attrs = append(pending, it.Attrs...)
				out = append(out, it)
			}
		}
		pending = nil
	}
	return out
}

func (w *walker) public(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "visibility_modifier" {
			return strings.HasPrefix(w.text(c), "pub")
		}
	}
	return false
}

func (w *walker) generics(n *sitter.Node) syntax.Generics {
	var g syntax.Generics
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		parsed, err := syntax.ParseGenerics(w.text(tp))
		if err != nil {
			w.fail(tp, "generics", err)
		} else {
			g = parsed
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "where_clause" {
			continue
		}
		preds, err := syntax.ParseWhere(w.text(c))
		if err != nil {
			w.fail(c, "where clause", err)
			continue
		}
		g.Where = append(g.Where, preds...)
	}
	return g
}

func (w *walker) bounds(n *sitter.Node) []syntax.Bound {
	if n == nil {
		return nil
	}
	bounds, err := syntax.ParseBounds(w.text(n))
	if err != nil {
		w.fail(n, "bounds", err)
		return nil
	}
	return bounds
}

func (w *walker) namedFields(list *sitter.Node) []syntax.Field {
	var out []syntax.Field
	var pending syntax.Attributes
	for i := 0; i < int(list.NamedChildCount()); i++ {
		n := list.NamedChild(i)
		switch n.Type() {
		case "attribute_item":
			if a, ok := w.attribute(n); ok {
				pending = append(pending, a)
			}
		case "field_declaration":
			f := syntax.Field{Attrs: pending, Public: w.public(n), Line: lang.Line(n), Type: w.typ(n.ChildByFieldName("type"))}
			if name := n.ChildByFieldName("name"); name != nil {
				f.Name = w.text(name)
			}
			out = append(out, f)
			pending = nil
		}
	}
	return out
}

func (w *walker) orderedFields(list *sitter.Node) []syntax.Field {
	var out []syntax.Field
	var pending syntax.Attributes
	public := false
	for i := 0; i < int(list.NamedChildCount()); i++ {
		n := list.NamedChild(i)
		switch n.Type() {
		case "attribute_item":
			if a, ok := w.attribute(n); ok {
				pending = append(pending, a)
			}
		case "visibility_modifier":
			public = strings.HasPrefix(w.text(n), "pub")
		case "line_comment", "block_comment":
		default:
			out = append(out, syntax.Field{
				Name:   fmt.Sprintf("%d", len(out)),
				Type:   w.typ(n),
				Attrs:  pending,
				Public: public,
				Line:   lang.Line(n),
			})
			pending = nil
			public = false
		}
	}
	return out
}

func (w *walker) variants(list *sitter.Node) []syntax.Variant {
	var out []syntax.Variant
	var pending syntax.Attributes
	for i := 0; i < int(list.NamedChildCount()); i++ {
		n := list.NamedChild(i)
		switch n.Type() {
		case "attribute_item":
			if a, ok := w.attribute(n); ok {
				pending = append(pending, a)
			}
		case "enum_variant":
			v := syntax.Variant{Attrs: pending, Line: lang.Line(n)}
			if name := n.ChildByFieldName("name"); name != nil {
				v.Name = w.text(name)
			}
			if value := n.ChildByFieldName("value"); value != nil {
				v.Discriminant = lang.CollapseWhitespace(w.text(value))
			}
			body := n.ChildByFieldName("body")
			switch {
			case body == nil:
				v.Unit = true
			case body.Type() == "ordered_field_declaration_list":
				v.Tuple = true
				v.Fields = w.orderedFields(body)
			default:
				v.Fields = w.namedFields(body)
			}
			out = append(out, v)
			pending = nil
		}
	}
	return out
}

func (w *walker) signature(n *sitter.Node) *syntax.Signature {
	sig := &syntax.Signature{Generics: w.generics(n)}
	if name := n.ChildByFieldName("name"); name != nil {
		sig.Name = w.text(name)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "function_modifiers" {
			continue
		}
		mods := w.text(c)
		sig.Async = strings.Contains(mods, "async")
		sig.Unsafe = strings.Contains(mods, "unsafe")
		sig.Const = strings.HasPrefix(mods, "const")
		if strings.Contains(mods, "extern") {
			sig.Abi = "C"
			if q := strings.Index(mods, `"`); q >= 0 {
				sig.Abi = strings.Trim(mods[q:], `" `)
			}
		}
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		w.params(sig, params)
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		if out := w.typ(ret); !out.IsUnit() {
			sig.Output = out
		}
	}
	return sig
}

func (w *walker) params(sig *syntax.Signature, list *sitter.Node) {
	var pending syntax.Attributes
	for i := 0; i < int(list.NamedChildCount()); i++ {
		n := list.NamedChild(i)
		switch n.Type() {
		case "attribute_item":
			if a, ok := w.attribute(n); ok {
				pending = append(pending, a)
			}
			continue
		case "self_parameter":
			sig.Receiver = receiver(w.text(n))
		case "parameter":
			pattern := n.ChildByFieldName("pattern")
			ty := w.typ(n.ChildByFieldName("type"))
			name := fmt.Sprintf("o_%d", len(sig.Params))
			if pattern != nil {
				switch text := w.text(pattern); {
				case text == "self":
					sig.Receiver = &syntax.Receiver{Type: ty}
					pending = nil
					continue
				case pattern.Type() == "identifier":
					name = text
				}
			}
			sig.Params = append(sig.Params, syntax.Param{Name: name, Type: ty, Attrs: pending})
		case "variadic_parameter":
			sig.Params = append(sig.Params, syntax.Param{Name: "...", Type: &syntax.Type{Kind: syntax.InferType}})
		}
		pending = nil
	}
}

func receiver(text string) *syntax.Receiver {
	fields := strings.Fields(strings.ReplaceAll(text, "&", "& "))
	r := &syntax.Receiver{}
	for _, f := range fields {
		switch {
		case f == "&":
			r.Ref = true
		case f == "mut":
			r.Mutable = r.Ref
		case strings.HasPrefix(f, "'"):
			r.Lifetime = f
		}
	}
	return r
}
