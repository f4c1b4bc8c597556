// Command adminctl administers the RBAC database: schema migrations, role
// imports, bootstrap users and offline authorization checks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/config"
	"adminkit.org/internal/store/pg"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	dsn     string
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "adminctl",
		Short:         "Administer roles, users and the RBAC schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (defaults to PG_DSN)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newRolesCmd(opts))
	cmd.AddCommand(newUsersCmd(opts))
	cmd.AddCommand(newAuthzCmd(opts))
	return cmd
}

// config loads settings, letting --dsn win over the environment.
func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.dsn != "" {
		cfg.PGDSN = o.dsn
	}
	return cfg, nil
}

func (o *rootOptions) openStore() (*pg.Store, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	if cfg.PGDSN == "" {
		return nil, fmt.Errorf("missing DSN: provide --dsn or PG_DSN")
	}
	return pg.Open(cfg.PGDSN)
}

func (o *rootOptions) openService() (*auth.RBACService, func(), error) {
	store, err := o.openStore()
	if err != nil {
		return nil, nil, err
	}
	svc, err := auth.NewRBACService(store)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, func() { _ = store.Close() }, nil
}
