package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

func TestScopePriority(t *testing.T) {
	t.Parallel()

	order := []ScopeKind{ObjectScope, TraitScope, FnScope, ImplScope, ModuleScope, CrateRootScope}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i-1].Priority(), order[i].Priority(), "%s vs %s", order[i-1], order[i])
	}
}

func TestScopeChainEquality(t *testing.T) {
	t.Parallel()

	root := &ScopeChain{Kind: CrateRootScope, Crate: "app", Self: SelfScope{Path: syntax.NewPath("app")}}
	mod := &ScopeChain{Kind: ModuleScope, Crate: "app", Self: SelfScope{Path: syntax.NewPath("app", "model")}, Parent: root}
	same := &ScopeChain{Kind: ModuleScope, Crate: "app", Self: SelfScope{Path: syntax.NewPath("app", "model")}}
	other := &ScopeChain{Kind: ObjectScope, Crate: "app", Self: SelfScope{Path: syntax.NewPath("app", "model")}, Parent: mod}

	assert.True(t, mod.Equal(same))
	assert.False(t, mod.Equal(other))
	assert.Same(t, mod, other.Module())
	assert.Same(t, root, root.Module())
	assert.True(t, root.IsRoot())
}

func TestCfgChain(t *testing.T) {
	t.Parallel()

	cfgA, err := syntax.ParseAttribute(`#[cfg(feature = "a")]`)
	require.NoError(t, err)
	cfgB, err := syntax.ParseAttribute(`#[cfg(test)]`)
	require.NoError(t, err)
	doc, err := syntax.ParseAttribute(`#[doc = "x"]`)
	require.NoError(t, err)

	root := &ScopeChain{Kind: CrateRootScope}
	mod := &ScopeChain{Kind: ModuleScope, Attrs: syntax.Attributes{cfgA}, Parent: root}
	obj := &ScopeChain{Kind: ObjectScope, Attrs: syntax.Attributes{doc, cfgB, cfgA}, Parent: mod}

	assert.Equal(t, []string{`feature = "a"`, "test"}, obj.CfgChain().CfgPredicates())
}

func TestUnknownCount(t *testing.T) {
	t.Parallel()

	vec, _ := Builtin("Vec")
	vec.Model.Nested = []NestedArgument{{Object: UnknownOf(syntax.MustParseType("Foo"))}}
	obj := TypeOf(vec)
	assert.False(t, obj.IsUnknown())
	assert.True(t, obj.HasUnknown())
	assert.Equal(t, 1, obj.UnknownCount())

	vec.Model.Nested[0].Object = TypeOf(TypeModelKind{Tag: Object})
	assert.Equal(t, 0, TypeOf(vec).UnknownCount())
	assert.True(t, ObjectKind{}.IsUnknown())
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ident string
		want  string
	}{
		{"u8", "Dictionary::Primitive"},
		{"String", "Dictionary::NonPrimitiveFermentable::String"},
		{"str", "Dictionary::NonPrimitiveFermentable::Str"},
		{"u128", "Dictionary::NonPrimitiveFermentable::I128"},
		{"Arc", "Dictionary::NonPrimitiveFermentable::SmartPointer::Arc"},
		{"HashMap", "Dictionary::NonPrimitiveFermentable::Group::Map"},
		{"Result", "Dictionary::NonPrimitiveFermentable::Group::Result"},
		{"Option", "Optional"},
		{"FnMut", "Dictionary::LambdaFn"},
		{"Send", "Dictionary::NonPrimitiveOpaque"},
	}
	for _, tt := range tests {
		k, ok := Builtin(tt.ident)
		require.True(t, ok, tt.ident)
		assert.Equal(t, tt.want, k.String(), tt.ident)
	}

	_, ok := Builtin("User")
	assert.False(t, ok)
}

func TestNewTraitModel(t *testing.T) {
	t.Parallel()

	bounds, err := syntax.ParseBounds("Named + Send + ?Sized + 'static")
	require.NoError(t, err)
	item := &syntax.Item{
		Kind:   syntax.TraitItem,
		Name:   "Greeter",
		Bounds: bounds,
		Items: []*syntax.Item{
			{Kind: syntax.FnItem, Name: "greet", Sig: &syntax.Signature{Name: "greet"}},
			{Kind: syntax.AssocTypeItem, Name: "Output"},
		},
	}
	tm := NewTraitModel(syntax.NewPath("app", "Greeter"), item)
	require.Len(t, tm.Methods, 1)
	assert.Equal(t, []string{"Output"}, tm.AssocTypes)
	require.Len(t, tm.Supertraits, 2)
	assert.Equal(t, "Named", tm.Supertraits[0].String())
}
