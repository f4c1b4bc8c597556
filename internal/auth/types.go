package auth

import (
	"time"

	"adminkit.org/internal/authz"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a console operator together with the roles assigned to them.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Active reports whether the user may sign in.
func (u User) Active() bool { return u.Status == UserStatusActive }

// HasPassword reports whether a password was ever set.
func (u User) HasPassword() bool { return u.PasswordHash != "" }

// Snapshot converts the user into the normalized form the permission model
// consumes.
func (u User) Snapshot() *authz.User {
	roles := make([]authz.Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, authz.Role{Name: r.Name, Permissions: r.Permissions})
	}
	return authz.NewUser(u.ID, roles)
}

// RoleNames returns assigned role names in assignment order.
func (u User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, r.Name)
	}
	return out
}

// Role groups permissions.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a catalog entry.
type Permission struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// UserRoleAssignment links a user to a role.
type UserRoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser carries validated fields for user creation.
type NewUser struct {
	Name         string
	Username     string
	Email        string
	Status       string
	PasswordHash string
	RoleIDs      []string
}

type UserUpdate struct {
	Name     *string
	Username *string
	Email    *string
	Status   *string
	Password *string
}

type RoleUpdate struct {
	Name        *string
	Description *string
}

// ListFilter narrows user listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// AuditEntry is one persisted audit record.
type AuditEntry struct {
	ID           string            `json:"id"`
	OccurredAt   time.Time         `json:"occurred_at"`
	ActorID      string            `json:"actor_id,omitempty"`
	Event        string            `json:"event"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// AuditFilter narrows audit listings. Results are newest first.
type AuditFilter struct {
	ActorID string
	Event   string
	Limit   int
	Offset  int
}
