package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"adminkit.org/internal/seed"
)

func newRolesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage roles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "import <file.yaml>",
		Short:   "Create or update roles from a YAML file",
		Example: `  adminctl roles import ops/roles.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			roles, err := seed.LoadRoles(f)
			if err != nil {
				return err
			}

			svc, closeFn, err := opts.openService()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := svc.EnsureBuiltins(cmd.Context()); err != nil {
				return err
			}
			res, err := seed.ImportRoles(cmd.Context(), svc, roles)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range res.Created {
				fmt.Fprintf(out, "created %s\n", name)
			}
			for _, name := range res.Updated {
				fmt.Fprintf(out, "updated %s\n", name)
			}
			return nil
		},
	})
	return cmd
}
