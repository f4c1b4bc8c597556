package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newUsersCmd(opts *rootOptions) *cobra.Command {
	var (
		name     string
		username string
		email    string
		password string
		roles    []string
	)
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user, optionally with roles by name",
		Example: `  adminctl users create --name "Site Owner" --username owner \
    --email owner@example.com --password s3cret! --role ROOT`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := opts.openService()
			if err != nil {
				return err
			}
			defer closeFn()
			ctx := cmd.Context()

			roleIDs := make([]string, 0, len(roles))
			for _, r := range roles {
				role, err := svc.FindRoleByName(ctx, r)
				if err != nil {
					return fmt.Errorf("role %s: %w", r, err)
				}
				roleIDs = append(roleIDs, role.ID)
			}
			user, err := svc.CreateUser(ctx, name, username, email, password, "", roleIDs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(user)
		},
	}
	create.Flags().StringVar(&name, "name", "", "Display name")
	create.Flags().StringVar(&username, "username", "", "Login name")
	create.Flags().StringVar(&email, "email", "", "Email address")
	create.Flags().StringVar(&password, "password", "", "Initial password")
	create.Flags().StringSliceVar(&roles, "role", nil, "Role name to assign (repeatable)")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}
