// Package ferment generates C-ABI glue for a Rust crate: it loads the crate
// and its registrations, resolves every path in a scope graph, classifies
// the exported types and emits the conversion module.
package ferment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pankcuf/ferment-sub004/internal/classify"
	"github.com/pankcuf/ferment-sub004/internal/crate"
	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/emit"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/scope"
)

const (
	DefaultOutputDir = "src"
	DefaultLanguage  = "rust"
)

// ErrConfig reports an unusable Config.
var ErrConfig = errors.New("invalid config")

// CrateRef names a crate the target crate depends on. With a Root the
// crate is loaded and resolved alongside the target; without one its paths
// are known but opaque.
type CrateRef struct {
	Name string `mapstructure:"name" yaml:"name"`
	Root string `mapstructure:"root" yaml:"root,omitempty"`
}

// Config describes one generation run.
type Config struct {
	// CrateName defaults to the package name in Root/Cargo.toml.
	CrateName      string
	Root           string
	ExternalCrates []CrateRef
	// OutputDir is relative to Root.
	OutputDir string
	ModName   string
	Languages []string
	// StrictUnknown fails the run when any name stays unresolved.
	StrictUnknown bool
	// InventoryFile is an optional registration manifest, relative to Root.
	InventoryFile string
	Logger        *slog.Logger
}

// Result is the outcome of a run.
type Result struct {
	// Crate is the identifier the target crate was loaded under.
	Crate string
	// Files maps paths relative to Root to their content.
	Files map[string][]byte
	// Written lists the files Generate wrote, relative to Root.
	Written     []string
	Diagnostics []diag.Diagnostic

	Items     []string
	Functions []string
	Generics  []string

	Registrations []inventory.Entry
	Records       []*mangle.Record
}

// Generate renders the glue and writes it under cfg.OutputDir.
func Generate(ctx context.Context, cfg Config) (*Result, error) {
	res, err := Render(ctx, cfg)
	if err != nil {
		return res, err
	}
	for _, rel := range sortedKeys(res.Files) {
		path := filepath.Join(cfg.Root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return res, writeFailure(res, filepath.Dir(rel), fmt.Errorf("%w: creating %s: %w", diag.ErrIO, filepath.Dir(rel), err))
		}
		if err := os.WriteFile(path, res.Files[rel], 0o644); err != nil {
			return res, writeFailure(res, rel, fmt.Errorf("%w: writing %s: %w", diag.ErrIO, rel, err))
		}
		res.Written = append(res.Written, rel)
	}
	return res, nil
}

// Render runs the pipeline without touching the output directory. On a
// fatal failure the returned error is a *diag.FatalError and the Result,
// when non-nil, carries the diagnostics gathered so far.
func Render(ctx context.Context, cfg Config) (*Result, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	bag := diag.NewBag()
	var cell inventory.Cell

	crates, err := loadCrates(ctx, cfg, bag, &cell)
	if err != nil {
		return abort(bag, &Result{Crate: cfg.CrateName}, err)
	}

	if cfg.InventoryFile != "" {
		entries, err := inventory.LoadManifest(filepath.Join(cfg.Root, cfg.InventoryFile), cfg.CrateName)
		if err != nil {
			bag.Add(diag.Diagnostic{Kind: diag.IOFailure, Location: diag.Location{File: cfg.InventoryFile}, Message: err.Error()})
			return abort(bag, &Result{Crate: cfg.CrateName}, fmt.Errorf("%w: %w", diag.ErrIO, err))
		}
		cell.Submit(entries...)
	}
	entries := cell.Take()
	for _, d := range inventory.Validate(entries) {
		bag.Add(d)
	}
	res := &Result{Crate: cfg.CrateName, Registrations: entries}
	if bag.HasFatal() {
		return abort(bag, res, nil)
	}
	logger.Debug("Inventory taken", "registrations", len(entries))

	var unloaded []string
	for _, ext := range cfg.ExternalCrates {
		if ext.Root == "" {
			unloaded = append(unloaded, ext.Name)
		}
	}
	g := scope.Build(crates, scope.Options{Logger: logger, External: unloaded})
	passes := g.Refine()
	logger.Debug("Scope graph refined", "passes", passes)

	cls := classify.New(g, mangle.NewRegistry(), bag)
	out, err := emit.New(g, inventory.NewIndex(entries), cls, bag, emit.Options{
		Crate:   cfg.CrateName,
		ModName: cfg.ModName,
		Logger:  logger,
	}).Emit(ctx)
	res.Records = cls.Registry().Sorted()
	if err != nil {
		return abort(bag, res, err)
	}
	if n := bag.Count(diag.UnresolvedName); cfg.StrictUnknown && n > 0 {
		return abort(bag, res, fmt.Errorf("%w: %d name(s)", diag.ErrUnresolved, n))
	}

	res.Files = make(map[string][]byte, len(out.Files))
	for name, data := range out.Files {
		res.Files[filepath.ToSlash(filepath.Join(cfg.OutputDir, name))] = data
	}
	res.Items = out.Items
	res.Functions = out.Functions
	res.Generics = out.Generics
	res.Diagnostics = bag.Sorted()
	for _, d := range res.Diagnostics {
		if d.Severity >= diag.Warning {
			logger.Warn("Diagnostic", "kind", d.Kind.String(), "location", d.Location.String(), "subject", d.Subject, "message", d.Message)
		}
	}
	logger.Info("Glue rendered", "crate", cfg.CrateName, "items", len(res.Items), "functions", len(res.Functions), "generics", len(res.Generics))
	return res, nil
}

func normalize(cfg Config) (Config, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.ModName == "" {
		cfg.ModName = emit.DefaultModName
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{DefaultLanguage}
	}
	for _, l := range cfg.Languages {
		if l != DefaultLanguage {
			return cfg, fmt.Errorf("%w: unsupported language %q", ErrConfig, l)
		}
	}
	if cfg.CrateName == "" {
		name, err := PackageName(cfg.Root)
		if err != nil {
			return cfg, err
		}
		cfg.CrateName = name
	}
	cfg.CrateName = CrateIdent(cfg.CrateName)
	cfg.ExternalCrates = slices.Clone(cfg.ExternalCrates)
	for i, ext := range cfg.ExternalCrates {
		if ext.Name == "" {
			return cfg, fmt.Errorf("%w: external crate %d has no name", ErrConfig, i+1)
		}
		cfg.ExternalCrates[i].Name = CrateIdent(ext.Name)
		if ext.Root != "" && !filepath.IsAbs(ext.Root) {
			cfg.ExternalCrates[i].Root = filepath.Join(cfg.Root, ext.Root)
		}
	}
	return cfg, nil
}

// PackageName reads the package name from root/Cargo.toml.
func PackageName(root string) (string, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, "Cargo.toml"))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("%w: no crate name given and Cargo.toml is unreadable: %w", ErrConfig, err)
	}
	name := v.GetString("package.name")
	if name == "" {
		return "", fmt.Errorf("%w: Cargo.toml has no package.name", ErrConfig)
	}
	return name, nil
}

// CrateIdent is the identifier a crate name is referenced by in paths.
func CrateIdent(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// abort stops a run: res carries the diagnostics gathered so far and err
// comes back as a *diag.FatalError.
func abort(bag *diag.Bag, res *Result, err error) (*Result, error) {
	var fe *diag.FatalError
	if !errors.As(err, &fe) {
		fe = diag.Fatal(bag, err)
	}
	res.Diagnostics = fe.Diagnostics
	return res, fe
}

// writeFailure records a failed write of rel against res.
func writeFailure(res *Result, rel string, err error) error {
	res.Diagnostics = append(res.Diagnostics, diag.Diagnostic{
		Kind:     diag.IOFailure,
		Severity: diag.Error,
		Location: diag.Location{File: rel},
		Message:  err.Error(),
	})
	diag.Sort(res.Diagnostics)
	return &diag.FatalError{Diagnostics: res.Diagnostics, Err: err}
}

// loadCrates loads the target crate and every external crate with a root,
// in configuration order.
func loadCrates(ctx context.Context, cfg Config, bag *diag.Bag, cell *inventory.Cell) ([]*crate.Crate, error) {
	type job struct{ name, dir, exclude string }
	jobs := []job{{
		name:    cfg.CrateName,
		dir:     cfg.Root,
		exclude: filepath.ToSlash(filepath.Join(cfg.OutputDir, cfg.ModName+".rs")),
	}}
	for _, ext := range cfg.ExternalCrates {
		if ext.Root != "" {
			jobs = append(jobs, job{name: ext.Name, dir: ext.Root})
		}
	}

	crates := make([]*crate.Crate, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			opts := crate.Options{Logger: cfg.Logger, Diagnostics: bag, Inventory: cell}
			if j.exclude != "" {
				opts.Exclude = []string{j.exclude}
			}
			c, err := crate.Load(ctx, j.name, j.dir, opts)
			if err != nil {
				return fmt.Errorf("loading crate %s: %w", j.name, err)
			}
			crates[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return crates, nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
