package auth

import "context"

// RBACStore describes persistence operations required by RBACService.
// Users returned by Get/Find/List carry their roles with permissions.
type RBACStore interface {
	CreateUser(ctx context.Context, u NewUser) (User, error)
	ListUsers(ctx context.Context, filter ListFilter) ([]User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	FindUserByLogin(ctx context.Context, login string) (User, error)
	UpdateUser(ctx context.Context, userID string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, userID string) error

	CreateRole(ctx context.Context, name, description string, permissionKeys []string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)
	UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, roleID string) error

	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error
	AssignRoleToUser(ctx context.Context, userID, roleID string) (UserRoleAssignment, error)
	RemoveRoleAssignment(ctx context.Context, userID, roleID string) error

	AuditStore
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// Invalidator drops cached user snapshots after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// UserLoader resolves the current snapshot of a user.
type UserLoader interface {
	LoadUser(ctx context.Context, userID string) (User, error)
}
