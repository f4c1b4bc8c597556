package auth_test

import (
	"context"
	"errors"
	"testing"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
	"adminkit.org/internal/store/memory"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newService(t *testing.T) (*auth.RBACService, *countingInvalidator) {
	t.Helper()
	inv := &countingInvalidator{}
	svc, err := auth.NewRBACService(memory.New(), auth.WithInvalidator(inv))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}
	return svc, inv
}

func TestNewRBACServiceRequiresStore(t *testing.T) {
	if _, err := auth.NewRBACService(nil); !errors.Is(err, auth.ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestEnsureBuiltinsIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	perms, err := svc.Permissions(ctx)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if len(perms) != len(auth.BuiltinPermissions) {
		t.Fatalf("expected %d permissions, got %d", len(auth.BuiltinPermissions), len(perms))
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, inv := newService(t)
	ctx := context.Background()

	cases := []struct {
		name, fullName, username, email, password string
	}{
		{"short name", "Ann", "annabel", "ann@example.com", "secret1"},
		{"short username", "Annabel Lee", "ann", "ann@example.com", "secret1"},
		{"username with at", "Annabel Lee", "ann@bel", "ann@example.com", "secret1"},
		{"bad email", "Annabel Lee", "annabel", "not-an-email", "secret1"},
		{"short password", "Annabel Lee", "annabel", "ann@example.com", "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tc.fullName, tc.username, tc.email, tc.password, "", nil)
			if !errors.Is(err, auth.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if inv.calls != 0 {
		t.Fatalf("rejected input must not invalidate, got %d calls", inv.calls)
	}
}

func TestCreateUserNormalizesAndConflicts(t *testing.T) {
	svc, inv := newService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "  Annabel Lee ", " AnnaBel ", "ANN@Example.com", "secret1", "", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "annabel" || user.Email != "ann@example.com" || user.Name != "Annabel Lee" {
		t.Fatalf("unexpected normalization: %+v", user)
	}
	if user.Status != auth.UserStatusActive {
		t.Fatalf("expected default status active, got %q", user.Status)
	}
	if inv.calls != 1 {
		t.Fatalf("expected one invalidation, got %d", inv.calls)
	}

	if _, err := svc.CreateUser(ctx, "Another Ann", "annabel", "other@example.com", "secret1", "", nil); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRoleLifecycleDrivesEffectivePermissions(t *testing.T) {
	svc, inv := newService(t)
	ctx := context.Background()

	editor, err := svc.CreateRole(ctx, "EDITOR", "Can edit users", []string{auth.PermUsersView, auth.PermUsersEdit, auth.PermUsersView})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if len(editor.Permissions) != 2 {
		t.Fatalf("expected duplicates removed, got %v", editor.Permissions)
	}
	user, err := svc.CreateUser(ctx, "Editor Person", "editor", "editor@example.com", "secret1", "", []string{editor.ID})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	loaded, err := svc.LoadUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	p := auth.NewPrincipal(&loaded, authz.DefaultPolicy())
	if !p.HasPermission(auth.PermUsersEdit) || p.HasPermission(auth.PermUsersDelete) {
		t.Fatalf("unexpected permissions %v", p.Permissions())
	}

	if err := svc.SetRolePermissions(ctx, editor.ID, []string{auth.PermUsersDelete}); err != nil {
		t.Fatalf("set permissions: %v", err)
	}
	loaded, _ = svc.LoadUser(ctx, user.ID)
	p = auth.NewPrincipal(&loaded, authz.DefaultPolicy())
	if p.HasPermission(auth.PermUsersEdit) || !p.HasPermission(auth.PermUsersDelete) {
		t.Fatalf("expected replaced permissions, got %v", p.Permissions())
	}

	if err := svc.SetRolePermissions(ctx, editor.ID, []string{"reports:view"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected unknown permission to be rejected, got %v", err)
	}

	if err := svc.DeleteRole(ctx, editor.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	loaded, _ = svc.LoadUser(ctx, user.ID)
	if len(loaded.Roles) != 0 {
		t.Fatalf("expected assignments removed with role, got %v", loaded.RoleNames())
	}
	// create role, create user, set perms, delete role
	if inv.calls != 4 {
		t.Fatalf("expected 4 invalidations, got %d", inv.calls)
	}
}

func TestAssignAndRemoveRole(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "VIEWER", "", []string{auth.PermRolesView})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	user, err := svc.CreateUser(ctx, "Viewer Person", "viewer", "viewer@example.com", "", "", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.AssignRoleToUser(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.AssignRoleToUser(ctx, user.ID, role.ID); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate assignment, got %v", err)
	}
	if _, err := svc.AssignRoleToUser(ctx, user.ID, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.RemoveRoleAssignment(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := svc.RemoveRoleAssignment(ctx, user.ID, role.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
	if _, err := svc.AssignRoleToUser(ctx, " ", role.ID); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "Login Person", "loginuser", "login@example.com", "secret1", "", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, login := range []string{"loginuser", "LOGIN@example.com"} {
		got, err := svc.Authenticate(ctx, login, "secret1")
		if err != nil {
			t.Fatalf("authenticate %s: %v", login, err)
		}
		if got.ID != user.ID {
			t.Fatalf("unexpected user %s", got.ID)
		}
	}
	if _, err := svc.Authenticate(ctx, "loginuser", "wrong"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "secret1"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown user, got %v", err)
	}

	disabled := auth.UserStatusDisabled
	if _, err := svc.UpdateUser(ctx, user.ID, auth.UserUpdate{Status: &disabled}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "loginuser", "secret1"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected disabled user rejected, got %v", err)
	}
}

func TestSetUserPassword(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "Password Person", "pwduser", "pwd@example.com", "secret1", "", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := svc.SetUserPassword(ctx, user.ID, "nope", "secret2"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.SetUserPassword(ctx, user.ID, "secret1", "secret2"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "pwduser", "secret2"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
}

func TestListUsersFiltersAndPages(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, u := range []string{"alpha", "bravo", "charlie"} {
		if _, err := svc.CreateUser(ctx, "User "+u, u+"x", u+"@example.com", "", "", nil); err != nil {
			t.Fatalf("create %s: %v", u, err)
		}
	}
	users, err := svc.ListUsers(ctx, auth.ListFilter{Search: "bravo"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 || users[0].Username != "bravox" {
		t.Fatalf("unexpected search result %+v", users)
	}
	users, err = svc.ListUsers(ctx, auth.ListFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 || users[0].Username != "bravox" {
		t.Fatalf("unexpected page %+v", users)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, "Delete Person", "deleteme", "del@example.com", "", "", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetUser(ctx, user.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditAppendAndFilter(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if err := svc.AppendAudit(ctx, auth.AuditEntry{Event: " "}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	for _, e := range []auth.AuditEntry{
		{Event: "auth.login", ActorID: "u1"},
		{Event: "rbac.role.create", ActorID: "u1", Fields: map[string]string{"name": "EDITOR"}},
		{Event: "auth.login", ActorID: "u2"},
	} {
		if err := svc.AppendAudit(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.Event, err)
		}
	}

	byActor, err := svc.ListAudit(ctx, auth.AuditFilter{ActorID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byActor) != 2 || byActor[0].Event != "rbac.role.create" || byActor[0].ID == "" || byActor[0].OccurredAt.IsZero() {
		t.Fatalf("expected newest-first entries for u1, got %+v", byActor)
	}
	logins, err := svc.ListAudit(ctx, auth.AuditFilter{Event: "auth.login", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list logins: %v", err)
	}
	if len(logins) != 1 || logins[0].ActorID != "u1" {
		t.Fatalf("unexpected paged logins %+v", logins)
	}
}
