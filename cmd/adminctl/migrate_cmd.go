package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"adminkit.org/internal/migrate"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")

	run := func(action func(context.Context, *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return action(ctx, migrate.NewManager(store.DB(), migrate.Migrations(), migrate.Seeds()))
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run(func(ctx context.Context, m *migrate.Manager) error { return m.Up(ctx) }),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE:  run(func(ctx context.Context, m *migrate.Manager) error { return m.Down(ctx) }),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Load builtin permissions and the ROOT role",
		Args:  cobra.NoArgs,
		RunE:  run(func(ctx context.Context, m *migrate.Manager) error { return m.Seed(ctx) }),
	})
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		Args:  cobra.NoArgs,
	}
	statusCmd.RunE = run(func(ctx context.Context, m *migrate.Manager) error {
		history, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, item := range history {
			fmt.Fprintln(statusCmd.OutOrStdout(), item)
		}
		return nil
	})
	cmd.AddCommand(statusCmd)
	return cmd
}
