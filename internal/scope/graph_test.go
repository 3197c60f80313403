package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankcuf/ferment-sub004/internal/crate"
	"github.com/pankcuf/ferment-sub004/internal/cratetest"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

const rules = `-- src/lib.rs --
pub mod a;
pub mod b {
    pub struct Thing;
    pub mod deep {
        pub struct Leaf;
    }
}
use b::deep as d;

pub struct Thing { x: u8 }

pub struct Holder<T: Clone> { value: T, leaf: d::Leaf, other: crate::b::Thing }

pub trait Source {
    type Item;
    fn next(&self) -> Self::Item;
}

impl Source for Thing {
    type Item = Vec<u8>;
    fn next(&self) -> Self::Item { todo!() }
}

pub fn local() {
    struct Thing { y: u16 }
}

pub fn uses_std(a: std::time::Duration, b: std::collections::HashMap<u8, u8>, c: core::option::Option<u8>) {}

pub fn external(v: serde_json::Value) {}

pub type Pair = (Thing, Alias);
pub type Alias = Loop;
pub type Loop = Alias;
-- src/a.rs --
use super::b::Thing;

pub struct Wrap(pub Thing, pub super::Thing);

pub mod cycle {
    pub use super::other::X;
}
pub mod other {
    pub use super::cycle::X;
}
`

func load(t *testing.T, name, archive string, external ...string) *Graph {
	t.Helper()
	dir := cratetest.Write(t, archive)
	c, err := crate.Load(context.Background(), name, dir, crate.Options{})
	require.NoError(t, err)
	return Build([]*crate.Crate{c}, Options{External: external})
}

func scopeAt(t *testing.T, g *Graph, path string) *model.ScopeChain {
	t.Helper()
	p, err := syntax.ParsePath(path)
	require.NoError(t, err)
	if s, ok := g.Module(p); ok {
		return s
	}
	d, ok := g.Item(p)
	require.True(t, ok, "no item at %s", path)
	return d.Scope()
}

func resolve(t *testing.T, g *Graph, scope *model.ScopeChain, path string) model.ObjectKind {
	t.Helper()
	p, err := syntax.ParsePath(path)
	require.NoError(t, err)
	return g.Resolve(p, scope)
}

func canonical(t *testing.T, g *Graph, scope *model.ScopeChain, ty string) string {
	t.Helper()
	canon, _ := g.ResolveType(syntax.MustParseType(ty), scope)
	return canon.String()
}

func TestResolveImportsAndModules(t *testing.T) {
	t.Parallel()

	g := load(t, "fixture", rules)
	g.Refine()

	root := g.Root("fixture")
	a := scopeAt(t, g, "fixture::a")

	tests := []struct {
		name  string
		scope *model.ScopeChain
		path  string
		want  string
	}{
		{"local struct", root, "Thing", "fixture::Thing"},
		{"renamed module import", root, "d::Leaf", "fixture::b::deep::Leaf"},
		{"crate prefix", root, "crate::b::Thing", "fixture::b::Thing"},
		{"crate name prefix", root, "fixture::b::deep::Leaf", "fixture::b::deep::Leaf"},
		{"import in child module", a, "Thing", "fixture::b::Thing"},
		{"super prefix", a, "super::Thing", "fixture::Thing"},
		{"self prefix", root, "self::b::Thing", "fixture::b::Thing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := resolve(t, g, tt.scope, tt.path)
			require.False(t, o.IsUnknown(), "%s unresolved", tt.path)
			assert.Equal(t, model.Object, o.Kind.Tag)
			assert.Equal(t, tt.want, o.Type().String())
		})
	}
}

func TestResolveShadowingByPriority(t *testing.T) {
	t.Parallel()

	g := load(t, "fixture", rules)

	local := scopeAt(t, g, "fixture::local")
	o := resolve(t, g, local, "Thing")
	assert.Equal(t, "fixture::local::Thing", o.Type().String())
	require.NotNil(t, o.Item)
	assert.Equal(t, "Thing", o.Item.Name)
}

func TestResolveGenericsAndSelf(t *testing.T) {
	t.Parallel()

	g := load(t, "fixture", rules)
	g.Refine()

	holder := scopeAt(t, g, "fixture::Holder")
	o := resolve(t, g, holder, "T")
	assert.Equal(t, model.Bounds, o.Kind.Tag)
	require.NotNil(t, o.Kind.Model.Generics)
	assert.Len(t, o.Kind.Model.Generics.BoundsFor("T"), 1)

	self := resolve(t, g, holder, "Self")
	assert.Equal(t, "fixture::Holder", self.Type().String())

	impls := g.Impls()
	require.Len(t, impls, 1)
	impl := impls[0]
	assert.Equal(t, "fixture::Thing", impl.Chain.Self.Path.String())
	assert.Equal(t, model.Object, impl.Chain.Self.Object.Kind.Tag)

	next := impl.Children[0].Chain
	assert.Equal(t, "fixture::Thing::next", next.Self.Path.String())
	assert.Equal(t, "Vec<u8>", canonical(t, g, next, "Self::Item"))
	assert.True(t, g.Lookup(syntax.MustParseType("Self::Item"), next).Kind.IsGroup(model.VecGroup))

	trait := scopeAt(t, g, "fixture::Source")
	traitNode, ok := g.Node(trait)
	require.True(t, ok)
	proj := g.Lookup(syntax.MustParseType("Self::Item"), traitNode.Children[0].Chain)
	assert.Equal(t, model.TraitType, proj.Kind.Tag)
	assert.Equal(t, "fixture::Source::Item", proj.Type().String())

	tr := resolve(t, g, g.Root("fixture"), "Source")
	assert.Equal(t, model.Trait, tr.Kind.Tag)
	require.NotNil(t, tr.Kind.Trait)
	assert.Equal(t, []string{"Item"}, tr.Kind.Trait.AssocTypes)
}

func TestResolveForeignPaths(t *testing.T) {
	t.Parallel()

	g := load(t, "fixture", rules, "serde_json")
	g.Refine()

	fn := scopeAt(t, g, "fixture::uses_std")
	assert.Equal(t, "std::collections::HashMap<u8, u8>", canonical(t, g, fn, "std::collections::HashMap<u8, u8>"))
	assert.True(t, g.Lookup(syntax.MustParseType("std::collections::HashMap<u8, u8>"), fn).Kind.IsGroup(model.MapGroup))
	assert.Equal(t, model.Optional, g.Lookup(syntax.MustParseType("core::option::Option<u8>"), fn).Kind.Tag)

	duration := g.Lookup(syntax.MustParseType("std::time::Duration"), fn)
	assert.True(t, duration.IsUnknown())
	assert.Equal(t, "std::time::Duration", duration.Type().String())

	ext := scopeAt(t, g, "fixture::external")
	value := g.Lookup(syntax.MustParseType("serde_json::Value"), ext)
	assert.True(t, value.IsUnknown())
	assert.Equal(t, "serde_json::Value", value.Type().String())

	var unresolved []string
	for _, e := range g.Unresolved() {
		unresolved = append(unresolved, e.Type.String())
	}
	assert.Contains(t, unresolved, "std::time::Duration")
	assert.Contains(t, unresolved, "serde_json::Value")
}

func TestResolveCyclesTerminate(t *testing.T) {
	t.Parallel()

	g := load(t, "fixture", rules)
	g.Refine()

	a := scopeAt(t, g, "fixture::a")
	assert.True(t, resolve(t, g, a, "cycle::X").IsUnknown())

	pair := resolve(t, g, g.Root("fixture"), "Pair")
	require.Equal(t, model.Object, pair.Kind.Tag)
	tuple := pair.Kind.Nested(0)
	assert.Equal(t, model.Tuple, tuple.Kind.Tag)
	assert.Equal(t, "fixture::Thing", tuple.Kind.Nested(0).Type().String())
	assert.True(t, tuple.Kind.Nested(1).HasUnknown())
}

func TestLookupMemoizes(t *testing.T) {
	t.Parallel()

	g := load(t, "fixture", rules)
	root := g.Root("fixture")
	before := g.TypeChain(root).Len()

	ty := syntax.MustParseType("Option<Vec<Thing>>")
	first := g.Lookup(ty, root)
	assert.Equal(t, before+1, g.TypeChain(root).Len())
	second := g.Lookup(syntax.MustParseType("Option<Vec<Thing>>"), root)
	assert.Equal(t, before+1, g.TypeChain(root).Len())
	assert.Equal(t, first.Type().String(), second.Type().String())

	got, ok := g.TypeChain(root).Get(ty)
	require.True(t, ok)
	assert.Equal(t, model.Optional, got.Kind.Tag)
}
