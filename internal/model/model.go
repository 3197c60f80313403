// Package model defines the resolution-time data structures shared by the
// scope graph, the classifier and the emitter.
package model

import (
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// ScopeKind is the shape of a scope chain entry.
type ScopeKind int

const (
	CrateRootScope ScopeKind = iota
	ModuleScope
	ObjectScope
	TraitScope
	ImplScope
	FnScope
)

var scopeKindNames = [...]string{"crate", "mod", "object", "trait", "impl", "fn"}

func (k ScopeKind) String() string {
	if int(k) < len(scopeKindNames) {
		return scopeKindNames[k]
	}
	return "unknown"
}

// Priority orders scopes for shadowing: Object > Trait > Fn > Impl > Module > CrateRoot.
func (k ScopeKind) Priority() int {
	switch k {
	case ObjectScope:
		return 5
	case TraitScope:
		return 4
	case FnScope:
		return 3
	case ImplScope:
		return 2
	case ModuleScope:
		return 1
	}
	return 0
}

// HasSelf reports whether `Self` is meaningful inside the scope.
func (k ScopeKind) HasSelf() bool {
	return k == ObjectScope || k == TraitScope || k == ImplScope
}

// SelfScope is the canonical path a scope defines plus the object found there.
type SelfScope struct {
	Path   syntax.Path
	Object ObjectKind
}

// ScopeChain identifies a scope and links to its parent. Parent is nil only
// for the crate root.
type ScopeChain struct {
	Kind   ScopeKind
	Crate  string
	Self   SelfScope
	Attrs  syntax.Attributes
	Parent *ScopeChain
}

// Key identifies the scope by kind, crate and self path.
func (s *ScopeChain) Key() string {
	return s.Kind.String() + ":" + s.Crate + ":" + s.Self.Path.Key()
}

// Equal compares kind, crate and self path.
func (s *ScopeChain) Equal(other *ScopeChain) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Key() == other.Key()
}

// IsRoot reports the crate root.
func (s *ScopeChain) IsRoot() bool { return s.Kind == CrateRootScope }

// Module returns the nearest enclosing module or crate root, s included.
func (s *ScopeChain) Module() *ScopeChain {
	for c := s; c != nil; c = c.Parent {
		if c.Kind == ModuleScope || c.Kind == CrateRootScope {
			return c
		}
	}
	return nil
}

// CfgChain collects cfg attributes from s and every ancestor, outermost first.
func (s *ScopeChain) CfgChain() syntax.Attributes {
	var chain []*ScopeChain
	for c := s; c != nil; c = c.Parent {
		chain = append(chain, c)
	}
	var out syntax.Attributes
	for i := len(chain) - 1; i >= 0; i-- {
		out = out.Merge(chain[i].Attrs.Cfg())
	}
	return out
}

func (s *ScopeChain) String() string {
	var b strings.Builder
	b.WriteString(s.Kind.String())
	b.WriteByte('(')
	b.WriteString(s.Self.Path.String())
	b.WriteByte(')')
	return b.String()
}

// ObjectTag discriminates ObjectKind.
type ObjectTag int

const (
	EmptyObject ObjectTag = iota
	TypeObject
	ItemObject
)

// ObjectKind is what a name resolves to: a bare type model, a type model
// with its declaring item and scope, or nothing.
type ObjectKind struct {
	Tag   ObjectTag
	Kind  TypeModelKind
	Item  *syntax.Item
	Scope *ScopeChain
}

// TypeOf wraps a model kind with no declaring item.
func TypeOf(k TypeModelKind) ObjectKind { return ObjectKind{Tag: TypeObject, Kind: k} }

// ItemOf wraps a model kind with its declaring item and scope.
func ItemOf(k TypeModelKind, item *syntax.Item, scope *ScopeChain) ObjectKind {
	return ObjectKind{Tag: ItemObject, Kind: k, Item: item, Scope: scope}
}

// UnknownOf is the pre-resolution placeholder for ty.
func UnknownOf(ty *syntax.Type) ObjectKind {
	return TypeOf(TypeModelKind{Tag: Unknown, Model: TypeModel{Type: ty}})
}

// IsEmpty reports the empty object.
func (o ObjectKind) IsEmpty() bool { return o.Tag == EmptyObject }

// IsUnknown reports an object whose own tag is unresolved.
func (o ObjectKind) IsUnknown() bool {
	return o.Tag == EmptyObject || o.Kind.Tag == Unknown
}

// HasUnknown reports whether o or any nested argument is unresolved.
func (o ObjectKind) HasUnknown() bool { return o.UnknownCount() > 0 }

// UnknownCount counts unresolved nodes in o and its nested arguments.
// Refinement only accepts replacements that lower this count.
func (o ObjectKind) UnknownCount() int {
	n := 0
	if o.IsUnknown() {
		n++
	}
	for _, nested := range o.Kind.Model.Nested {
		n += nested.Object.UnknownCount()
	}
	return n
}

// Type returns the type expression carried by the model.
func (o ObjectKind) Type() *syntax.Type { return o.Kind.Model.Type }

// NestedArgument is a resolved generic argument.
type NestedArgument struct {
	Object ObjectKind
}
