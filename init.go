package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	sentinelStart = "// ferment:start"
	sentinelEnd   = "// ferment:end"
)

func newInitCmd(v *viper.Viper) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [path-to-lib.rs]",
		Short: "Declare the generated module in the crate root",
		Long: `Write a declaration of the generated module to the crate root. The
declaration is wrapped in sentinel comments so it can be updated in place on
subsequent runs without touching surrounding code.

path-to-lib.rs defaults to <crate.root>/src/lib.rs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := v.GetString(crateRootKey)
			path := filepath.Join(root, "src", "lib.rs")
			if len(args) > 0 {
				path = args[0]
			}
			output := filepath.Join(root, v.GetString(outputDirKey))
			section := generateSection(path, output, v.GetString(modNameKey))

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), section)
				return nil
			}

			existing, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading crate root: %w", err)
			}
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), updated)
				return nil
			}

			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s module declaration to %s\n", v.GetString(modNameKey), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// generateSection returns the sentinel-wrapped declaration of module
// modName, generated into outputDir, as seen from the crate root file
// libPath. A #[path] attribute is added when the file does not sit where
// the module would be looked up.
func generateSection(libPath, outputDir, modName string) string {
	var b strings.Builder
	b.WriteString(sentinelStart + "\n")
	b.WriteString("#[allow(clippy::all, dead_code, unused_imports)]\n")
	file := filepath.Join(outputDir, modName+".rs")
	if rel, err := filepath.Rel(filepath.Dir(libPath), file); err == nil && filepath.ToSlash(rel) != modName+".rs" {
		b.WriteString(`#[path = "` + filepath.ToSlash(rel) + `"]` + "\n")
	}
	b.WriteString("pub mod " + modName + ";\n")
	b.WriteString(sentinelEnd)
	return b.String()
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
