// Package crate loads the source files of a Rust crate and assembles its
// module tree.
package crate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/discover"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/lang"
	"github.com/pankcuf/ferment-sub004/internal/parse"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

const defaultMaxFileSize = 1_000_000 // 1 MB

// Crate is a loaded crate. Root's module items have their bodies filled in
// from the files they were declared in.
type Crate struct {
	Name  string
	Dir   string
	Root  *syntax.File
	Files map[string]*syntax.File
}

// Options controls loading.
type Options struct {
	// Exclude lists crate-relative paths never read, typically the
	// generated output file.
	Exclude     []string
	MaxFileSize int64
	Logger      *slog.Logger
	Diagnostics *diag.Bag
	// Inventory receives the marker registrations of the crate's items.
	// Nil disables collection.
	Inventory *inventory.Cell
}

// Load discovers, parses and assembles the crate at dir.
func Load(ctx context.Context, name, dir string, opts Options) (*Crate, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = diag.NewBag()
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}

	entry, err := rootFile(dir)
	if err != nil {
		return nil, err
	}

	found, err := discover.Sources(dir, discover.Options{
		Exclude: opts.Exclude,
		MaxSize: opts.MaxFileSize,
		Logger:  opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: discovering files: %w", diag.ErrIO, err)
	}
	var sources []string
	for _, f := range found {
		if !f.Auxiliary {
			sources = append(sources, f.Path)
		}
	}

	parsed, err := parseConcurrent(ctx, dir, sources, opts.Diagnostics)
	if err != nil {
		return nil, err
	}
	c := &Crate{Name: name, Dir: dir, Files: parsed}
	root, ok := parsed[entry]
	if !ok {
		return nil, fmt.Errorf("%w: crate root %s could not be read", diag.ErrIO, entry)
	}
	c.Root = root

	a := &assembler{crate: c, opts: opts, ctx: ctx}
	a.items(root.Items, filepath.ToSlash(filepath.Dir(entry)), map[string]bool{entry: true})

	opts.Logger.Debug("Crate loaded", "crate", name, "files", len(c.Files))

	if opts.Inventory != nil {
		opts.Inventory.Submit(inventory.Collect(name, syntax.NewPath(name), root.Items, opts.Diagnostics)...)
	}
	return c, nil
}

// rootFile returns the crate-relative entry point: src/lib.rs, then
// src/main.rs, then a bare lib.rs.
func rootFile(dir string) (string, error) {
	for _, candidate := range []string{"src/lib.rs", "src/main.rs", "lib.rs"} {
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(candidate))); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no crate root (src/lib.rs or src/main.rs) under %s", diag.ErrIO, dir)
}

// parseConcurrent parses files on GOMAXPROCS workers, each with its own
// tree-sitter parser. Unreadable files abort the load.
func parseConcurrent(ctx context.Context, dir string, files []string, bag *diag.Bag) (map[string]*syntax.File, error) {
	results := make([]*syntax.File, len(files))

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	for i := range files {
		work <- i
	}
	close(work)

	g, gctx := errgroup.WithContext(ctx)
	for range numWorkers {
		g.Go(func() error {
			// Each goroutine gets its own parser
			parser := lang.NewParser()
			defer parser.Close()
			for idx := range work {
				if err := gctx.Err(); err != nil {
					return err
				}
				f, err := parseOne(gctx, parser, dir, files[idx], bag)
				if err != nil {
					return err
				}
				results[idx] = f
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*syntax.File, len(files))
	for i, f := range results {
		out[files[i]] = f
	}
	return out, nil
}

func parseOne(ctx context.Context, parser *sitter.Parser, dir, rel string, bag *diag.Bag) (*syntax.File, error) {
	source, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		bag.Add(diag.Diagnostic{Kind: diag.IOFailure, Location: diag.Location{File: rel}, Message: err.Error()})
		return nil, fmt.Errorf("%w: reading %s: %v", diag.ErrIO, rel, err)
	}
	return parse.File(ctx, parser, source, rel, bag)
}

// assembler resolves `mod name;` declarations to files and fills in
// their items.
type assembler struct {
	crate *Crate
	opts  Options
	ctx   context.Context
}

// items loads out-of-line modules among items. dir is the directory
// child module files are looked up in.
func (a *assembler) items(items []*syntax.Item, dir string, loading map[string]bool) {
	for _, it := range items {
		if it.Kind != syntax.ModItem {
			continue
		}
		if it.Inline {
			a.items(it.Items, joinSlash(dir, it.Name), loading)
			continue
		}
		rel, ok := a.locate(it, dir)
		if !ok {
			a.opts.Diagnostics.Addf(diag.ParseFailure, diag.Location{File: it.File, Line: it.Line}, it.Name,
				"module file not found (looked for %s)", strings.Join(candidates(dir, it.Name), ", "))
			continue
		}
		if a.excluded(rel) {
			continue
		}
		if loading[rel] {
			a.opts.Diagnostics.Addf(diag.ParseFailure, diag.Location{File: it.File, Line: it.Line}, it.Name,
				"module file %s is already being loaded", rel)
			continue
		}
		f := a.file(rel)
		if f == nil {
			continue
		}
		it.Items = f.Items
		it.Attrs = it.Attrs.Merge(inner(f.Attrs))
		it.Loaded = true

		childDir := joinSlash(dir, it.Name)
		if filepath.Base(rel) == "mod.rs" || it.Attrs.Has("path") {
			childDir = filepath.ToSlash(filepath.Dir(rel))
		}
		loading[rel] = true
		a.items(it.Items, childDir, loading)
		delete(loading, rel)
	}
}

func (a *assembler) locate(it *syntax.Item, dir string) (string, bool) {
	if attr, ok := it.Attrs.Find("path"); ok && attr.Value != "" {
		rel := joinSlash(dir, strings.Trim(attr.Value, `"`))
		return rel, a.exists(rel)
	}
	for _, c := range candidates(dir, it.Name) {
		if a.exists(c) {
			return c, true
		}
	}
	return "", false
}

func (a *assembler) excluded(rel string) bool {
	for _, e := range a.opts.Exclude {
		if filepath.ToSlash(filepath.Clean(e)) == rel {
			return true
		}
	}
	return false
}

func (a *assembler) exists(rel string) bool {
	if _, ok := a.crate.Files[rel]; ok {
		return true
	}
	info, err := os.Stat(filepath.Join(a.crate.Dir, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}

// file returns the parsed file, parsing it on demand when discovery did not
// list it.
func (a *assembler) file(rel string) *syntax.File {
	if f, ok := a.crate.Files[rel]; ok {
		return f
	}
	parser := lang.NewParser()
	defer parser.Close()
	f, err := parseOne(a.ctx, parser, a.crate.Dir, rel, a.opts.Diagnostics)
	if err != nil {
		a.opts.Logger.Warn("Failed to load module file", "path", rel, "error", err)
		return nil
	}
	a.crate.Files[rel] = f
	return f
}

func candidates(dir, name string) []string {
	return []string{joinSlash(dir, name+".rs"), joinSlash(dir, name+"/mod.rs")}
}

func inner(attrs syntax.Attributes) syntax.Attributes {
	var out syntax.Attributes
	for _, a := range attrs {
		if a.IsCfg() {
			a.Inner = false
			out = append(out, a)
		}
	}
	return out
}

func joinSlash(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}
