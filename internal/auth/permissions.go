package auth

import (
	"fmt"
	"strings"

	"adminkit.org/internal/authz"
)

// PermissionAll is the wildcard token; any role carrying it is treated as root.
const PermissionAll = "*"

var (
	PermUsersView   = authz.Perm(authz.ResourceUsers, authz.ActionView)
	PermUsersCreate = authz.Perm(authz.ResourceUsers, authz.ActionCreate)
	PermUsersEdit   = authz.Perm(authz.ResourceUsers, authz.ActionEdit)
	PermUsersDelete = authz.Perm(authz.ResourceUsers, authz.ActionDelete)

	PermRolesView   = authz.Perm(authz.ResourceRoles, authz.ActionView)
	PermRolesCreate = authz.Perm(authz.ResourceRoles, authz.ActionCreate)
	PermRolesEdit   = authz.Perm(authz.ResourceRoles, authz.ActionEdit)
	PermRolesDelete = authz.Perm(authz.ResourceRoles, authz.ActionDelete)
)

// BuiltinPermissions is the catalog seeded on startup.
var BuiltinPermissions = builtinPermissions()

func builtinPermissions() []Permission {
	out := []Permission{{Key: PermissionAll, Description: "All permissions"}}
	for _, res := range []string{authz.ResourceUsers, authz.ResourceRoles} {
		for _, act := range authz.Actions() {
			out = append(out, Permission{
				Key:         authz.Perm(res, act),
				Description: fmt.Sprintf("%s %s", strings.ToUpper(act[:1])+act[1:], res),
			})
		}
	}
	return out
}
