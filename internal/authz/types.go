// Package authz derives effective permission sets from role assignments and
// answers authorization queries against them.
//
// Everything here is pure and in-memory: a Checker is built from one
// immutable User snapshot and never changes afterwards. Callers that observe
// a new snapshot (role edit, logout/login) build a new Checker.
package authz

import "strings"

// Role is a named bundle of permission strings.
type Role struct {
	Name        string
	Permissions []string
}

// User is the read-only snapshot the permission model consumes.
type User struct {
	ID    string
	Roles []Role
}

// NewUser returns a normalized snapshot: nil slices become empty ones and the
// input is copied, so later changes to roles do not leak into the snapshot.
func NewUser(id string, roles []Role) *User {
	u := &User{ID: id, Roles: make([]Role, 0, len(roles))}
	for _, r := range roles {
		perms := make([]string, len(r.Permissions))
		copy(perms, r.Permissions)
		u.Roles = append(u.Roles, Role{Name: r.Name, Permissions: perms})
	}
	return u
}

// Actions understood by the console.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// Actions lists every action in display order.
func Actions() []string {
	return []string{ActionView, ActionCreate, ActionEdit, ActionDelete}
}

// Resources guarded by the console.
const (
	ResourceUsers = "users"
	ResourceRoles = "roles"
)

// Perm builds the "<resource>:<action>" permission token.
func Perm(resource, action string) string {
	return resource + ":" + action
}

// ResourcePermissions returns the full action set for a resource.
func ResourcePermissions(resource string) []string {
	actions := Actions()
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, Perm(resource, a))
	}
	return out
}

// SplitPerm splits a permission token into resource and action. Tokens
// without a separator return ok=false; the model itself never requires this.
func SplitPerm(p string) (resource, action string, ok bool) {
	resource, action, ok = strings.Cut(p, ":")
	if !ok || resource == "" || action == "" {
		return "", "", false
	}
	return resource, action, true
}
