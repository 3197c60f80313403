package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
	"github.com/pankcuf/ferment-sub004/internal/toon"
	"github.com/pankcuf/ferment-sub004/pkg/ferment"
)

func newInspectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [crate-dir]",
		Short: "Print registrations, generic instantiations and diagnostics",
		Long: `Run the pipeline without writing anything and print, in TOON, the merged
registrations, every generic instantiation with its cfg gate, the emitted
item and function names, and the diagnostics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := fermentConfig(v, cmd, args)
			if err != nil {
				return err
			}
			res, err := ferment.Render(cmd.Context(), cfg)
			if res == nil {
				return err
			}
			root := cfg.Root
			if root == "" {
				root = defaultRoot
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), toon.Encode(&toon.Report{
				Crate:         res.Crate,
				Root:          root,
				Registrations: res.Registrations,
				Generics:      res.Records,
				Items:         res.Items,
				Functions:     res.Functions,
				Diagnostics:   res.Diagnostics,
			}))
			return err
		},
	}
}

func newMangleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mangle TYPE...",
		Short: "Print the mangled identifier of Rust type expressions",
		Long: `Print the identifier each Rust type expression is emitted under, one per
line. Paths are mangled as written; no crate is read.`,
		Example: `  ferment mangle 'Vec<u32>' '[u8; 32]' 'Box<dyn Fn(u32) -> bool>'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				ty, err := syntax.ParseType(arg)
				if err != nil {
					return fmt.Errorf("parsing %q: %w", arg, err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), mangle.Mangle(ty.StripLifetimes()))
			}
			return nil
		},
	}
}
