package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"adminkit.org/internal/authz"
	"adminkit.org/internal/seed"
)

func newAuthzCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authz",
		Short: "Inspect authorization decisions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "explain <snapshot.yaml>",
		Short: "Print the effective permissions and navigation for a user snapshot",
		Long: `Evaluates a user snapshot offline with the AUTHZ_* policy settings.
The file holds an id and a list of roles with their permissions; an empty
file is evaluated as an unauthenticated session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			user, err := seed.LoadSnapshot(f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(seed.Explain(user, cfg.Policy(), authz.NewGate()))
		},
	})
	return cmd
}
