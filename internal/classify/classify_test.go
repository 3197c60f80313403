package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// fakeResolver knows a handful of user items and falls back to the
// built-in dictionary.
type fakeResolver map[string]string

func (f fakeResolver) ResolvePath(p syntax.Path) model.ObjectKind {
	key := p.ArgLess().String()
	if canon, ok := f[key]; ok {
		path, err := syntax.ParsePath(canon)
		if err != nil {
			panic(err)
		}
		tag := model.Object
		if path.LastIdent() == "Named" {
			tag = model.Trait
		}
		return model.TypeOf(model.TypeModelKind{Tag: tag, Model: model.TypeModel{Type: syntax.PathOf(path)}})
	}
	if k, ok := model.Builtin(p.LastIdent()); ok && len(p.Segments) == 1 {
		k.Model.Type = syntax.PathOf(p.ArgLess())
		return model.TypeOf(k)
	}
	return model.UnknownOf(syntax.PathOf(p.ArgLess()))
}

type fakeContext struct{ r fakeResolver }

func (c fakeContext) Lookup(ty *syntax.Type, _ *model.ScopeChain) model.ObjectKind {
	return Object(ty, c.r)
}

var users = fakeResolver{
	"User":          "app::model::User",
	"ProtocolError": "app::error::ProtocolError",
	"Named":         "app::traits::Named",
}

func TestObjectTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ty    string
		check func(t *testing.T, k model.TypeModelKind)
		canon string
	}{
		{"u64", func(t *testing.T, k model.TypeModelKind) { assert.True(t, k.IsPrimitive()) }, "u64"},
		{"()", func(t *testing.T, k model.TypeModelKind) { assert.True(t, k.IsPrimitive()) }, "()"},
		{"String", func(t *testing.T, k model.TypeModelKind) { assert.Equal(t, model.FermString, k.Ferm) }, "String"},
		{"&str", func(t *testing.T, k model.TypeModelKind) {
			assert.Equal(t, model.FermStr, k.Ferm)
			assert.Equal(t, model.ByRef, k.Ref)
		}, "&str"},
		{"u128", func(t *testing.T, k model.TypeModelKind) { assert.True(t, k.Is128()) }, "u128"},
		{"Box<User>", func(t *testing.T, k model.TypeModelKind) {
			assert.True(t, k.IsSmartPointer(model.BoxPtr))
			assert.Equal(t, model.Object, k.Nested(0).Kind.Tag)
		}, "Box<app::model::User>"},
		{"Vec<Option<u8>>", func(t *testing.T, k model.TypeModelKind) {
			assert.True(t, k.IsGroup(model.VecGroup))
			assert.Equal(t, model.Optional, k.Nested(0).Kind.Tag)
		}, "Vec<Option<u8>>"},
		{"HashMap<String, User>", func(t *testing.T, k model.TypeModelKind) {
			assert.True(t, k.IsGroup(model.MapGroup))
			assert.Len(t, k.Model.Nested, 2)
		}, "HashMap<String, app::model::User>"},
		{"Result<u32, ProtocolError>", func(t *testing.T, k model.TypeModelKind) {
			assert.True(t, k.IsGroup(model.ResultGroup))
		}, "Result<u32, app::error::ProtocolError>"},
		{"[u8; 32]", func(t *testing.T, k model.TypeModelKind) {
			assert.Equal(t, model.Array, k.Tag)
			assert.True(t, k.Nested(0).Kind.IsPrimitive())
		}, "[u8; 32]"},
		{"&[User]", func(t *testing.T, k model.TypeModelKind) {
			assert.Equal(t, model.Slice, k.Tag)
			assert.Equal(t, model.ByRef, k.Ref)
		}, "&[app::model::User]"},
		{"(u8, User)", func(t *testing.T, k model.TypeModelKind) { assert.Equal(t, model.Tuple, k.Tag) }, "(u8, app::model::User)"},
		{`extern "C" fn(u32) -> User`, func(t *testing.T, k model.TypeModelKind) {
			assert.Equal(t, model.FnPointer, k.Tag)
			assert.Len(t, k.Model.Nested, 2)
		}, `extern "C" fn(u32) -> app::model::User`},
		{"Box<dyn Fn(u32) -> bool + Send>", func(t *testing.T, k model.TypeModelKind) {
			assert.True(t, k.IsSmartPointer(model.BoxPtr))
			assert.True(t, k.Nested(0).Kind.IsLambda())
		}, "Box<dyn Fn(u32) -> bool>"},
		{"&mut dyn Named", func(t *testing.T, k model.TypeModelKind) {
			assert.Equal(t, model.Trait, k.Tag)
			assert.Equal(t, model.ByRefMut, k.Ref)
		}, "&mut dyn app::traits::Named"},
		{"impl Named + Send", func(t *testing.T, k model.TypeModelKind) { assert.Equal(t, model.Bounds, k.Tag) }, "impl app::traits::Named"},
		{"*const User", func(t *testing.T, k model.TypeModelKind) {
			assert.Equal(t, model.Object, k.Tag)
			assert.Equal(t, model.ByConstPtr, k.Ref)
		}, "*const app::model::User"},
		{"<User as Named>::Output", func(t *testing.T, k model.TypeModelKind) { assert.Equal(t, model.TraitType, k.Tag) }, "<app::model::User as app::traits::Named>::Output"},
		{"Mystery", func(t *testing.T, k model.TypeModelKind) { assert.Equal(t, model.Unknown, k.Tag) }, "Mystery"},
	}
	for _, tt := range tests {
		t.Run(tt.ty, func(t *testing.T) {
			ty, err := syntax.ParseType(tt.ty)
			require.NoError(t, err)
			o := Object(ty, users)
			tt.check(t, o.Kind)
			assert.Equal(t, tt.canon, Canonical(ty, users).String())
		})
	}
}

func TestObjectIgnoresLifetimes(t *testing.T) {
	t.Parallel()

	a := Canonical(syntax.MustParseType("Vec<&'a User>"), users)
	b := Canonical(syntax.MustParseType("Vec<&User>"), users)
	assert.Equal(t, b.Key(), a.Key())
}

func newClassifier() (*Classifier, *diag.Bag) {
	bag := diag.NewBag()
	return New(fakeContext{users}, mangle.NewRegistry(), bag), bag
}

func registered(c *Classifier) []string {
	var out []string
	for _, r := range c.Registry().Sorted() {
		out = append(out, r.Name)
	}
	return out
}

func TestClassifyRegistersInstantiations(t *testing.T) {
	t.Parallel()

	c, bag := newClassifier()
	scope := &model.ScopeChain{Kind: model.ModuleScope, Crate: "app"}
	for _, ty := range []string{
		"Vec<User>",
		"BTreeMap<String, Vec<u32>>",
		"Option<[u8; 32]>",
		"Vec<[u8; 4]>",
		"(u8, String)",
		"Box<dyn Fn(u32) -> bool>",
		"Arc<User>",
	} {
		_, err := c.Classify(syntax.MustParseType(ty), scope, diag.Location{File: "src/lib.rs"})
		require.NoError(t, err)
	}
	assert.Equal(t, 0, bag.Len(), "%v", bag.Sorted())
	assert.ElementsMatch(t, []string{
		"Vec_app_model_User",
		"Map_keys_String_values_Vec_u32",
		"Vec_u32",
		"Vec_Arr_u8_4",
		"Arr_u8_4",
		"Tuple_u8_String",
		"Fn_ARGS_u32_RTRN_bool",
	}, registered(c))
}

func TestClassifyGatesByScope(t *testing.T) {
	t.Parallel()

	c, _ := newClassifier()
	root := &model.ScopeChain{Kind: model.CrateRootScope, Crate: "app"}
	gated := &model.ScopeChain{
		Kind:   model.ModuleScope,
		Crate:  "app",
		Parent: root,
		Attrs:  syntax.Attributes{{Path: "cfg", Args: `feature = "extra"`, HasArgs: true}},
	}
	_, err := c.Classify(syntax.MustParseType("Vec<u32>"), gated, diag.Location{})
	require.NoError(t, err)

	rec, ok := c.Registry().Lookup("Vec_u32")
	require.True(t, ok)
	gate, isGated := rec.Cfg()
	require.True(t, isGated)
	assert.Equal(t, `#[cfg(feature = "extra")]`, gate.String())
}

func TestClassifyReportsUnknownAndUnsupported(t *testing.T) {
	t.Parallel()

	c, bag := newClassifier()
	scope := &model.ScopeChain{Kind: model.ModuleScope, Crate: "app"}
	loc := diag.Location{File: "src/lib.rs", Line: 4}

	_, err := c.Classify(syntax.MustParseType("Vec<Mystery>"), scope, loc)
	require.NoError(t, err)
	assert.Equal(t, 1, bag.Count(diag.UnresolvedName))

	_, err = c.Classify(syntax.MustParseType("fn(u32) -> u32"), scope, loc)
	require.NoError(t, err)
	_, err = c.Classify(syntax.MustParseType("Box<dyn Named + Other>"), scope, loc)
	require.NoError(t, err)
	assert.Equal(t, 2, bag.Count(diag.UnsupportedConstruct))
	assert.NotContains(t, registered(c), "Fn_ARGS_u32_RTRN_u32")
}

func TestClassifyReportsProjections(t *testing.T) {
	t.Parallel()

	c, bag := newClassifier()
	scope := &model.ScopeChain{Kind: model.ModuleScope, Crate: "app"}
	loc := diag.Location{File: "src/lib.rs", Line: 9}

	k, err := c.Classify(syntax.MustParseType("<User as Named>::Item"), scope, loc)
	require.NoError(t, err)
	assert.Equal(t, model.TraitType, k.Tag)
	require.Equal(t, 1, bag.Count(diag.UnresolvedName))
	d := bag.Sorted()[0]
	assert.Equal(t, loc, d.Location)
	assert.Contains(t, d.Subject, "Item")

	_, err = c.Classify(syntax.MustParseType("Vec<<User as Named>::Item>"), scope, loc)
	require.NoError(t, err)
	assert.Equal(t, 2, bag.Count(diag.UnresolvedName))
}

func TestClassifyCollision(t *testing.T) {
	t.Parallel()

	bag := diag.NewBag()
	r := fakeResolver{"a::B": "a::B", "a_B": "a_B"}
	c := New(fakeContext{r}, mangle.NewRegistry(), bag)
	scope := &model.ScopeChain{Kind: model.ModuleScope, Crate: "app"}

	_, err := c.Classify(syntax.MustParseType("Vec<a::B>"), scope, diag.Location{})
	require.NoError(t, err)
	_, err = c.Classify(syntax.MustParseType("Vec<a_B>"), scope, diag.Location{})
	require.Error(t, err)
	assert.Equal(t, 1, bag.Count(diag.ManglingCollision))
	assert.True(t, bag.HasFatal())
}

func TestIsExternFn(t *testing.T) {
	t.Parallel()

	assert.True(t, IsExternFn(syntax.MustParseType(`unsafe extern "C" fn(u32) -> u32`)))
	assert.False(t, IsExternFn(syntax.MustParseType(`fn(u32) -> u32`)))
	assert.False(t, IsExternFn(syntax.MustParseType(`u32`)))
}
