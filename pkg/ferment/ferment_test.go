package ferment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankcuf/ferment-sub004/internal/cratetest"
	"github.com/pankcuf/ferment-sub004/internal/diag"
)

func TestGenerateWritesGlue(t *testing.T) {
	dir := cratetest.Write(t, cratetest.Example)

	res, err := Generate(context.Background(), Config{Root: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/fermented.rs"}, res.Written)

	data, err := os.ReadFile(filepath.Join(dir, "src", "fermented.rs"))
	require.NoError(t, err)
	assert.Equal(t, res.Files["src/fermented.rs"], data)
	assert.Contains(t, res.Items, "example_model_User")
	assert.Contains(t, res.Generics, "Vec_u32")
	assert.NotEmpty(t, res.Registrations)
	assert.NotEmpty(t, res.Records)
}

func TestGenerateIgnoresPreviousOutput(t *testing.T) {
	dir := cratetest.Write(t, cratetest.Example)
	first, err := Generate(context.Background(), Config{Root: dir})
	require.NoError(t, err)

	second, err := Render(context.Background(), Config{Root: dir})
	require.NoError(t, err)
	assert.Equal(t, first.Files, second.Files)
}

func TestRenderCustomOutput(t *testing.T) {
	dir := cratetest.Write(t, cratetest.Example)
	res, err := Render(context.Background(), Config{Root: dir, OutputDir: "src/ffi", ModName: "glue"})
	require.NoError(t, err)
	require.Contains(t, res.Files, "src/ffi/glue.rs")
	assert.Contains(t, string(res.Files["src/ffi/glue.rs"]), "crate::glue::generics::Vec_u32")

	_, err = os.Stat(filepath.Join(dir, "src", "ffi"))
	assert.True(t, os.IsNotExist(err), "Render must not write")
}

const unknown = `-- Cargo.toml --
[package]
name = "my-app"
-- src/lib.rs --
#[ferment_macro::export]
pub struct Holder { pub thing: other::Thing, pub id: u32 }
`

func TestStrictUnknown(t *testing.T) {
	dir := cratetest.Write(t, unknown)

	res, err := Render(context.Background(), Config{Root: dir})
	require.NoError(t, err)
	assert.Contains(t, res.Items, "my_app_Holder")
	var unresolved int
	for _, d := range res.Diagnostics {
		if d.Kind == diag.UnresolvedName {
			unresolved++
		}
	}
	assert.Positive(t, unresolved)

	res, err = Render(context.Background(), Config{Root: dir, StrictUnknown: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrUnresolved), "got %v", err)
	var fatal *diag.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.NotEmpty(t, fatal.Diagnostics)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Diagnostics)
}

const conflicting = `-- Cargo.toml --
[package]
name = "conf"
-- ferment-manifest.yaml --
registrations:
  - marker: opaque
    path: crate::Item
-- src/lib.rs --
#[ferment_macro::export]
pub struct Item { pub id: u32 }
`

func TestRegistrationConflict(t *testing.T) {
	dir := cratetest.Write(t, conflicting)

	_, err := Render(context.Background(), Config{Root: dir})
	require.NoError(t, err, "the manifest is only read when configured")

	res, err := Generate(context.Background(), Config{Root: dir, InventoryFile: "ferment-manifest.yaml"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrRegistrationConflict), "got %v", err)
	require.NotNil(t, res)
	assert.Empty(t, res.Written)
	_, statErr := os.Stat(filepath.Join(dir, "src", "fermented.rs"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMissingManifest(t *testing.T) {
	dir := cratetest.Write(t, cratetest.Example)
	res, err := Render(context.Background(), Config{Root: dir, InventoryFile: "absent.yaml"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrIO), "got %v", err)
	var fatal *diag.FatalError
	require.ErrorAs(t, err, &fatal)
	require.NotNil(t, res)
	assert.Equal(t, fatal.Diagnostics, res.Diagnostics)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, diag.IOFailure, res.Diagnostics[0].Kind)
	assert.Equal(t, "absent.yaml", res.Diagnostics[0].Location.File)
}

func TestMissingCrateRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"bare\"\n"), 0o644))

	res, err := Render(context.Background(), Config{Root: dir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrIO), "got %v", err)
	var fatal *diag.FatalError
	require.ErrorAs(t, err, &fatal)
	require.NotNil(t, res)
}

func TestGenerateWriteFailure(t *testing.T) {
	dir := cratetest.Write(t, cratetest.Example)
	// A plain file where the output directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "ffi"), []byte("taken"), 0o644))

	res, err := Generate(context.Background(), Config{Root: dir, OutputDir: "src/ffi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrIO), "got %v", err)
	var fatal *diag.FatalError
	require.ErrorAs(t, err, &fatal)
	require.NotNil(t, res)
	assert.Empty(t, res.Written)
	var failed []string
	for _, d := range fatal.Diagnostics {
		if d.Kind == diag.IOFailure {
			failed = append(failed, d.Location.File)
		}
	}
	assert.Equal(t, []string{"src/ffi"}, failed)
}

const app = `-- Cargo.toml --
[package]
name = "app"
-- src/lib.rs --
#[ferment_macro::export]
pub fn norm(p: dep::Point) -> u32 { p.x }
`

const dep = `-- Cargo.toml --
[package]
name = "dep"
-- src/lib.rs --
#[ferment_macro::export]
pub struct Point { pub x: u32 }
`

func TestExternalCrates(t *testing.T) {
	dir := cratetest.Write(t, app)
	depDir := cratetest.Write(t, dep)

	res, err := Render(context.Background(), Config{
		Root:           dir,
		ExternalCrates: []CrateRef{{Name: "dep", Root: depDir}},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Items, "dep_Point")
	assert.Contains(t, res.Functions, "app_norm")
	text := string(res.Files["src/fermented.rs"])
	assert.Contains(t, text, "dep::Point { x: ffi_ref.x }")
	assert.Contains(t, text, "crate::norm(")
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(dir string) Config
	}{
		{"language", func(dir string) Config { return Config{Root: dir, Languages: []string{"objc"}} }},
		{"cargo", func(string) Config { return Config{Root: t.TempDir()} }},
		{"external name", func(dir string) Config { return Config{Root: dir, ExternalCrates: []CrateRef{{Root: dir}}} }},
	}
	dir := cratetest.Write(t, cratetest.Example)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(context.Background(), tt.cfg(dir))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
		})
	}
}

func TestPackageName(t *testing.T) {
	dir := cratetest.Write(t, unknown)
	name, err := PackageName(dir)
	require.NoError(t, err)
	assert.Equal(t, "my-app", name)
	assert.Equal(t, "my_app", CrateIdent(name))
}
