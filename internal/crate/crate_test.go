package crate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankcuf/ferment-sub004/internal/cratetest"
	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

func findMod(items []*syntax.Item, name string) *syntax.Item {
	for _, it := range items {
		if it.Kind == syntax.ModItem && it.Name == name {
			return it
		}
	}
	return nil
}

func TestLoadAssemblesModuleTree(t *testing.T) {
	t.Parallel()

	dir := cratetest.Write(t, cratetest.Example)
	bag := diag.NewBag()
	var cell inventory.Cell
	c, err := Load(context.Background(), "example", dir, Options{Diagnostics: bag, Inventory: &cell})
	require.NoError(t, err)
	assert.Equal(t, 0, bag.Len(), "%v", bag.Sorted())

	model := findMod(c.Root.Items, "model")
	require.NotNil(t, model)
	assert.True(t, model.Loaded)
	nested := findMod(model.Items, "nested")
	require.NotNil(t, nested)
	assert.True(t, nested.Loaded)
	require.NotEmpty(t, nested.Items)

	traits := findMod(c.Root.Items, "traits")
	require.NotNil(t, traits)
	assert.Equal(t, []string{`feature = "traits"`}, traits.Attrs.CfgPredicates())

	_, hasTests := c.Files["tests/integration.rs"]
	assert.False(t, hasTests)

	entries := cell.Take()
	var paths []string
	for _, e := range entries {
		if e.Marker == inventory.Export && e.Item.Kind != syntax.ImplItem {
			paths = append(paths, e.Path.String())
		}
	}
	assert.ElementsMatch(t, []string{
		"example::users_count",
		"example::shared",
		"example::model::User",
		"example::model::Id",
		"example::model::nested::Group",
		"example::error::ProtocolError",
		"example::traits::Named",
	}, paths)
}

func TestLoadPathAttributeAndMissingModule(t *testing.T) {
	t.Parallel()

	dir := cratetest.Write(t, `-- src/lib.rs --
#[path = "platform/linux.rs"]
pub mod sys;
pub mod missing;
-- src/platform/linux.rs --
pub struct Handle;
`)
	bag := diag.NewBag()
	c, err := Load(context.Background(), "paths", dir, Options{Diagnostics: bag})
	require.NoError(t, err)

	sys := findMod(c.Root.Items, "sys")
	require.NotNil(t, sys)
	assert.True(t, sys.Loaded)
	require.Len(t, sys.Items, 1)
	assert.Equal(t, "Handle", sys.Items[0].Name)

	require.Equal(t, 1, bag.Count(diag.ParseFailure))
	assert.Equal(t, "missing", bag.Sorted()[0].Subject)
}

func TestLoadExcludesOutput(t *testing.T) {
	t.Parallel()

	dir := cratetest.Write(t, `-- src/lib.rs --
pub mod fermented;
-- src/fermented.rs --
pub struct Generated;
`)
	c, err := Load(context.Background(), "out", dir, Options{Exclude: []string{"src/fermented.rs"}})
	require.NoError(t, err)
	_, listed := c.Files["src/fermented.rs"]
	assert.False(t, listed)
	mod := findMod(c.Root.Items, "fermented")
	require.NotNil(t, mod)
	assert.False(t, mod.Loaded)
	assert.Empty(t, mod.Items)
}

func TestLoadWithoutRoot(t *testing.T) {
	t.Parallel()

	dir := cratetest.Write(t, "-- README.md --\nhello\n")
	_, err := Load(context.Background(), "none", dir, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrIO)
}
