package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/pkg/ferment"
)

// errDrift is returned by `generate --check` when the files on disk differ
// from a fresh run.
var errDrift = errors.New("generated glue is out of date")

func newGenerateCmd(v *viper.Viper) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "generate [crate-dir]",
		Short: "Generate the FFI glue module",
		Long: `Generate the FFI glue module for the crate at crate-dir (default: crate.root,
then the current directory) and write it to <output>/<mod-name>.rs.

With --check nothing is written: the command prints a unified diff between
the file on disk and a fresh run and fails when they differ.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := fermentConfig(v, cmd, args)
			if err != nil {
				return err
			}
			if check {
				return runCheck(cmd, cfg)
			}
			res, err := ferment.Generate(cmd.Context(), cfg)
			if res != nil {
				if rerr := report(cmd.ErrOrStderr(), res.Diagnostics); rerr != nil {
					return rerr
				}
			}
			if err != nil {
				return err
			}
			for _, w := range res.Written {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "compare against the files on disk instead of writing")
	return cmd
}

func runCheck(cmd *cobra.Command, cfg ferment.Config) error {
	res, err := ferment.Render(cmd.Context(), cfg)
	if res != nil {
		if rerr := report(cmd.ErrOrStderr(), res.Diagnostics); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return err
	}

	root := cfg.Root
	if root == "" {
		root = defaultRoot
	}
	out := cmd.OutOrStdout()
	var stale []string
	names := make([]string, 0, len(res.Files))
	for name := range res.Files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		current, err := os.ReadFile(filepath.Join(root, name))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: reading %s: %w", diag.ErrIO, name, err)
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(current)),
			B:        difflib.SplitLines(string(res.Files[name])),
			FromFile: name + " (on disk)",
			ToFile:   name + " (generated)",
			Context:  3,
		})
		if err != nil {
			return fmt.Errorf("diffing %s: %w", name, err)
		}
		if text != "" {
			stale = append(stale, name)
			_, _ = fmt.Fprint(out, text)
		}
	}
	if len(stale) > 0 {
		return fmt.Errorf("%w: %d file(s)", errDrift, len(stale))
	}
	_, _ = fmt.Fprintln(out, "glue is up to date")
	return nil
}

// report prints the diagnostics table when there is anything to show.
func report(w io.Writer, ds []diag.Diagnostic) error {
	if len(ds) == 0 {
		return nil
	}
	return diag.Report(w, ds)
}
