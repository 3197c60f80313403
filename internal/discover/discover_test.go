package discover

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func paths(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Path
	}
	return out
}

func TestSourcesCrateLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "Cargo.toml", "[package]\nname = \"demo\"\n")
	writeFile(t, dir, "src/lib.rs", "pub mod model;")
	writeFile(t, dir, "src/model/mod.rs", "pub struct User;")
	writeFile(t, dir, "src/.hidden.rs", "secret")
	writeFile(t, dir, "build.rs", "fn main() {}")
	writeFile(t, dir, "tests/smoke.rs", "")
	writeFile(t, dir, "target/debug/build/out.rs", "")
	writeFile(t, dir, ".cargo/config.rs", "")

	got, err := Sources(dir, Options{})
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	want := []string{"build.rs", "src/lib.rs", "src/model/mod.rs", "tests/smoke.rs"}
	if !slices.Equal(paths(got), want) {
		t.Fatalf("paths = %v, want %v", paths(got), want)
	}
	aux := map[string]bool{"build.rs": true, "tests/smoke.rs": true}
	for _, s := range got {
		if s.Auxiliary != aux[s.Path] {
			t.Errorf("%s: Auxiliary = %v", s.Path, s.Auxiliary)
		}
	}
	if got[1].Size != int64(len("pub mod model;")) {
		t.Errorf("src/lib.rs size = %d", got[1].Size)
	}
}

func TestSourcesExclude(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/lib.rs", "")
	writeFile(t, dir, "src/fermented.rs", "")
	writeFile(t, dir, "src/generated/a.rs", "")

	got, err := Sources(dir, Options{Exclude: []string{"src/fermented.rs", "src/generated/"}})
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if want := []string{"src/lib.rs"}; !slices.Equal(paths(got), want) {
		t.Fatalf("paths = %v, want %v", paths(got), want)
	}
}

func TestSourcesMaxSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/lib.rs", "pub mod big;")
	writeFile(t, dir, "src/big.rs", "// "+string(make([]byte, 64)))

	got, err := Sources(dir, Options{MaxSize: 32})
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if want := []string{"src/lib.rs"}; !slices.Equal(paths(got), want) {
		t.Fatalf("paths = %v, want %v", paths(got), want)
	}
}

func TestSourcesGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "scratch/\n")
	writeFile(t, dir, "src/lib.rs", "")
	writeFile(t, dir, "scratch/tmp.rs", "")

	got, err := Sources(dir, Options{})
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if want := []string{"src/lib.rs"}; !slices.Equal(paths(got), want) {
		t.Fatalf("paths = %v, want %v", paths(got), want)
	}
}

func TestSourcesSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "lib.rs", "")
	if err := os.Symlink(filepath.Join(dir, "lib.rs"), filepath.Join(dir, "link.rs")); err != nil {
		t.Skip("symlinks not supported")
	}

	got, err := Sources(dir, Options{})
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if want := []string{"lib.rs"}; !slices.Equal(paths(got), want) {
		t.Fatalf("paths = %v, want %v", paths(got), want)
	}
}

func TestIsAuxiliary(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want bool
	}{
		{"tests/integration.rs", true},
		{"benches/bench.rs", true},
		{"examples/demo.rs", true},
		{"build.rs", true},
		{"src/lib.rs", false},
		{"src/tests/mod.rs", false},
		{"tests.rs", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			if got := IsAuxiliary(tc.path); got != tc.want {
				t.Errorf("IsAuxiliary(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
