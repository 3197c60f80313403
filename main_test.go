package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankcuf/ferment-sub004/internal/cratetest"
	"github.com/pankcuf/ferment-sub004/internal/diag"
)

// runCmd runs the CLI with its log file kept inside the test's temp dir.
func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args, "--log-file", filepath.Join(t.TempDir(), "ferment.log"))
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunVersion(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &stdout, &stderr))
	assert.Equal(t, "ferment dev\n", stdout.String())

	out, _, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ferment dev\n"), out)
}

func TestRunGenerate(t *testing.T) {
	t.Parallel()
	dir := cratetest.Write(t, cratetest.Example)

	out, _, err := runCmd(t, "generate", dir)
	require.NoError(t, err)
	assert.Equal(t, "wrote src/fermented.rs\n", out)

	data, err := os.ReadFile(filepath.Join(dir, "src", "fermented.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pub mod generics {")
}

func TestRunGenerateCheck(t *testing.T) {
	t.Parallel()
	dir := cratetest.Write(t, cratetest.Example)

	out, _, err := runCmd(t, "generate", "--check", dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDrift), "got %v", err)
	assert.Contains(t, out, "+++ src/fermented.rs (generated)")
	_, statErr := os.Stat(filepath.Join(dir, "src", "fermented.rs"))
	assert.True(t, os.IsNotExist(statErr), "--check must not write")

	_, _, err = runCmd(t, "generate", dir)
	require.NoError(t, err)

	out, _, err = runCmd(t, "generate", "--check", dir)
	require.NoError(t, err)
	assert.Equal(t, "glue is up to date\n", out)

	writeTestFile(t, dir, "src/fermented.rs", "// edited\n")
	out, _, err = runCmd(t, "generate", "--check", dir)
	require.ErrorIs(t, err, errDrift)
	assert.Contains(t, out, "-// edited")
}

func TestRunInspect(t *testing.T) {
	t.Parallel()
	dir := cratetest.Write(t, cratetest.Example)

	out, _, err := runCmd(t, "inspect", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "crate: example\n"), out)
	assert.Contains(t, out, "generics[4]{name,type,cfg}:")
	assert.Contains(t, out, "  Vec_u32,Vec<u32>,\"\"")
	assert.Contains(t, out, "functions[3]:")
	_, statErr := os.Stat(filepath.Join(dir, "src", "fermented.rs"))
	assert.True(t, os.IsNotExist(statErr), "inspect must not write")
}

func TestRunMangle(t *testing.T) {
	t.Parallel()
	out, _, err := runCmd(t, "mangle", "Vec<u32>", "[u8; 32]", "(u32, String)", "Option<&'a str>")
	require.NoError(t, err)
	assert.Equal(t, "Vec_u32\nArr_u8_32\nTuple_u32_String\nOption_str\n", out)

	_, _, err = runCmd(t, "mangle", "Vec<")
	require.Error(t, err)
}

const unresolved = `-- Cargo.toml --
[package]
name = "app"
-- src/lib.rs --
#[ferment_macro::export]
pub struct Holder { pub thing: other::Thing }
`

func TestRunStrict(t *testing.T) {
	t.Parallel()
	dir := cratetest.Write(t, unresolved)

	_, stderr, err := runCmd(t, "generate", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "unresolved")

	_, _, err = runCmd(t, "generate", "--strict", dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrUnresolved), "got %v", err)

	_, _, err = runCmd(t, "generate", "--external", "other", "--strict", dir)
	require.Error(t, err, "a crate without a root stays opaque")
}

const withDep = `-- Cargo.toml --
[package]
name = "app"
-- src/lib.rs --
#[ferment_macro::export]
pub fn norm(p: dep::Point) -> u32 { p.x }
`

const depCrate = `-- Cargo.toml --
[package]
name = "dep"
-- src/lib.rs --
#[ferment_macro::export]
pub struct Point { pub x: u32 }
`

func TestRunExternal(t *testing.T) {
	t.Parallel()
	dir := cratetest.Write(t, withDep)
	dep := cratetest.Write(t, depCrate)

	_, _, err := runCmd(t, "generate", "--strict", "--external", "dep="+dep, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "src", "fermented.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pub struct dep_Point {")
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	dir := cratetest.Write(t, cratetest.Example)
	cfg := filepath.Join(t.TempDir(), "ferment.yaml")
	writeTestFile(t, filepath.Dir(cfg), "ferment.yaml", `crate:
  root: `+dir+`
output:
  dir: src/ffi
  mod_name: glue
`)

	out, _, err := runCmd(t, "generate", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "wrote src/ffi/glue.rs\n", out)

	out, _, err = runCmd(t, "generate", "--config", cfg, "--mod-name", "flagged")
	require.NoError(t, err)
	assert.Equal(t, "wrote src/ffi/flagged.rs\n", out, "flags override the config file")

	_, _, err = runCmd(t, "generate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRunEnv(t *testing.T) {
	dir := cratetest.Write(t, cratetest.Example)
	t.Setenv("FERMENT_OUTPUT_MOD_NAME", "envglue")

	out, _, err := runCmd(t, "generate", dir)
	require.NoError(t, err)
	assert.Equal(t, "wrote src/envglue.rs\n", out)
}

func TestRunNotACrate(t *testing.T) {
	t.Parallel()
	_, _, err := runCmd(t, "generate", t.TempDir())
	require.Error(t, err)
}
