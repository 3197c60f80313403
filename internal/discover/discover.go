// Package discover lists the Rust sources of a crate directory.
package discover

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/pankcuf/ferment-sub004/internal/lang"
)

// Source is a Rust file found under a crate root.
type Source struct {
	Path string // slash-separated, relative to the crate root
	Size int64
	// Auxiliary marks integration tests, benches, examples and build
	// scripts. They are compiled as separate targets and never belong to
	// the library's module tree.
	Auxiliary bool
}

// Options controls discovery.
type Options struct {
	// Exclude lists crate-relative paths to skip. A directory excludes
	// everything below it.
	Exclude []string
	// MaxSize skips files larger than this many bytes. Zero means no limit.
	MaxSize int64
	Logger  *slog.Logger
}

// Cargo's build output and VCS metadata never hold crate sources.
var skipDirs = map[string]struct{}{
	"target": {},
	".git":   {},
}

var auxiliaryDirs = map[string]struct{}{
	"tests":    {},
	"benches":  {},
	"examples": {},
}

// Sources walks root and returns its Rust files sorted by path. Files git
// does not track, or .gitignore matches when root is not a checkout, are
// left out along with hidden entries and symlinks.
func Sources(root string, opts Options) ([]Source, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, e := range opts.Exclude {
		excluded[filepath.ToSlash(filepath.Clean(e))] = struct{}{}
	}
	tracked := trackedFiles(root)
	var gi *ignore.GitIgnore
	if tracked == nil {
		gi = loadGitignore(root)
	}

	var out []Source
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			_, skip := skipDirs[name]
			_, excl := excluded[rel]
			if skip || excl || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, excl := excluded[rel]; excl || !lang.IsSource(name) || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if tracked != nil {
			if _, ok := tracked[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		src := Source{Path: rel, Auxiliary: IsAuxiliary(rel)}
		if info, err := d.Info(); err == nil {
			src.Size = info.Size()
		}
		if opts.MaxSize > 0 && src.Size > opts.MaxSize {
			opts.Logger.Warn("Skipping large file", "path", rel, "size", src.Size, "max", opts.MaxSize)
			return nil
		}
		out = append(out, src)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b Source) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// trackedFiles asks git for the files it tracks or would track under root.
// It returns nil when root is not the top of a checkout.
func trackedFiles(root string) map[string]struct{} {
	if info, err := os.Stat(filepath.Join(root, ".git")); err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	raw, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for line := range strings.Lines(string(raw)) {
		if line = strings.TrimRight(line, "\n"); line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// IsAuxiliary reports whether a crate-relative path belongs to an
// integration test, bench, example or build script.
func IsAuxiliary(path string) bool {
	path = filepath.ToSlash(path)
	if path == "build.rs" {
		return true
	}
	first, _, nested := strings.Cut(path, "/")
	if !nested {
		return false
	}
	_, ok := auxiliaryDirs[first]
	return ok
}
