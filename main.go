// ferment generates C-ABI glue for a Rust crate.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

const rootLongDescription = `ferment reads a Rust crate, resolves every type its exported items
mention and writes a module of C-ABI wrappers, conversions and generic
instantiations next to the crate's sources.

Items opt in with #[ferment_macro::export] or #[ferment_macro::opaque].
Settings come from flags, FERMENT_* environment variables and ferment.yaml.`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(newViper())
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var logFile io.Closer
	cmd := &cobra.Command{
		Use:           "ferment",
		Short:         "Generate C-ABI glue for a Rust crate",
		Long:          rootLongDescription,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString(configFlagName)
			if err != nil {
				return err
			}
			if err := readConfig(v, path); err != nil {
				return err
			}
			logFile = configureLogger(v)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("ferment {{.Version}}\n")
	configureRootFlags(v, cmd)
	cmd.AddCommand(
		newGenerateCmd(v),
		newInspectCmd(v),
		newMangleCmd(),
		newInitCmd(v),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "ferment", version)
			if info, ok := debug.ReadBuildInfo(); ok {
				_, _ = fmt.Fprintln(out, "go version", info.GoVersion)
			}
		},
	}
}
