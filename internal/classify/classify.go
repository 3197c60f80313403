package classify

import (
	"errors"
	"fmt"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Context looks up the object a type names in a scope, typically through
// the scope's type chain.
type Context interface {
	Lookup(ty *syntax.Type, scope *model.ScopeChain) model.ObjectKind
}

// Classifier classifies types in their scope and records the generic
// instantiations they need.
type Classifier struct {
	ctx      Context
	registry *mangle.Registry
	bag      *diag.Bag
}

// New creates a classifier.
func New(ctx Context, registry *mangle.Registry, bag *diag.Bag) *Classifier {
	return &Classifier{ctx: ctx, registry: registry, bag: bag}
}

// Registry returns the generic registry instantiations are recorded in.
func (c *Classifier) Registry() *mangle.Registry { return c.registry }

// Classify returns the classification of ty written in scope.
func (c *Classifier) Classify(ty *syntax.Type, scope *model.ScopeChain, loc diag.Location) (model.TypeModelKind, error) {
	o, err := c.Object(ty, scope, loc)
	return o.Kind, err
}

// Object classifies ty written in scope and registers the generic
// instantiations it needs, gated by the scope's cfg chain. Unresolved and
// unsupported parts are reported; only a mangling collision fails.
func (c *Classifier) Object(ty *syntax.Type, scope *model.ScopeChain, loc diag.Location) (model.ObjectKind, error) {
	o := c.ctx.Lookup(ty, scope)
	attrs := scope.CfgChain()
	return o, c.record(o, attrs, loc, true)
}

// Gated is Object with the recorded instantiations gated by attrs instead
// of the scope's cfg chain.
func (c *Classifier) Gated(ty *syntax.Type, scope *model.ScopeChain, attrs syntax.Attributes, loc diag.Location) (model.ObjectKind, error) {
	o := c.ctx.Lookup(ty, scope)
	return o, c.record(o, attrs, loc, true)
}

// Require registers ty directly. The emitter uses it for instantiations a
// conversion needs that no source type spelled out.
func (c *Classifier) Require(ty *syntax.Type, attrs syntax.Attributes, loc diag.Location) (string, error) {
	name, err := c.registry.Add(ty, attrs)
	if err != nil {
		c.collision(err, loc)
	}
	return name, err
}

func (c *Classifier) record(o model.ObjectKind, attrs syntax.Attributes, loc diag.Location, top bool) error {
	k := o.Kind
	if o.IsUnknown() {
		c.bag.Addf(diag.UnresolvedName, loc, subject(o), "unresolved type; emitted as an opaque pointer")
	}

	register := false
	nestedTop := false
	walk := true
	switch {
	case k.IsGroup(), k.Tag == model.Tuple, k.Tag == model.Slice:
		register = true
	case k.Tag == model.Array:
		elem := k.Nested(0)
		register = !top || !elem.Kind.IsPrimitive()
	case k.Tag == model.Optional, k.IsSmartPointer():
		nestedTop = top
	case k.IsLambda():
		if _, err := c.Require(LambdaType(k), attrs, loc); err != nil {
			return err
		}
	case k.Tag == model.FnPointer:
		if !IsExternFn(k.Model.Type) {
			c.bag.Addf(diag.UnsupportedConstruct, loc, subject(o), "fn pointer without a C ABI; emitted as an opaque pointer")
			walk = false
		}
	case k.Tag == model.TraitType:
		c.bag.Addf(diag.UnresolvedName, loc, subject(o), "associated type projection does not name a concrete type; emitted as an opaque pointer")
		walk = false
	case k.Tag == model.Trait:
		if t := k.Model.Type; t != nil && len(t.Bounds) > 1 {
			c.bag.Addf(diag.UnsupportedConstruct, loc, subject(o), "trait object with several bounds; only %s crosses the boundary", t.Bounds[0].Path)
		}
		walk = false
	}
	if register {
		if _, err := c.Require(k.Model.Type, attrs, loc); err != nil {
			return err
		}
	}
	if !walk {
		return nil
	}
	for _, n := range k.Model.Nested {
		if err := c.record(n.Object, attrs, loc, nestedTop); err != nil {
			return err
		}
	}
	return nil
}

func (c *Classifier) collision(err error, loc diag.Location) {
	var ce *mangle.CollisionError
	if errors.As(err, &ce) {
		c.bag.Add(diag.Diagnostic{
			Kind:     diag.ManglingCollision,
			Location: loc,
			Subject:  ce.Name,
			Message:  fmt.Sprintf("%s and %s mangle to the same identifier", ce.Existing, ce.New),
		})
	}
}

func subject(o model.ObjectKind) string {
	if t := o.Type(); t != nil {
		return t.String()
	}
	return "?"
}

// LambdaType returns the callable bound of a boxed callable, such as
// `Fn(u32) -> bool` for `dyn Fn(u32) -> bool + Send`.
func LambdaType(k model.TypeModelKind) *syntax.Type {
	t := k.Model.Type
	if t == nil {
		return nil
	}
	if (t.Kind == syntax.DynType || t.Kind == syntax.ImplType) && len(t.Bounds) > 0 {
		return syntax.PathOf(t.Bounds[0].Path)
	}
	return t
}

// IsExternFn reports a fn pointer type with a C ABI.
func IsExternFn(t *syntax.Type) bool {
	return t != nil && t.Kind == syntax.FnType && (t.Abi == "C" || t.Abi == "system")
}
