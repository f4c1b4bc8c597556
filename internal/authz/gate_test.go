package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"adminkit.org/internal/authz"
)

func checkerFor(roles ...authz.Role) *authz.Checker {
	return authz.NewChecker(authz.NewUser("u", roles), authz.DefaultPolicy())
}

func TestRouteIsAuthenticationOnly(t *testing.T) {
	gate := authz.NewGate()

	d := gate.Route(authz.NewChecker(nil, authz.DefaultPolicy()))
	assert.Equal(t, authz.Redirect, d.Outcome)
	assert.Equal(t, "/login", d.Location)

	d = gate.Route(checkerFor())
	assert.Equal(t, authz.Proceed, d.Outcome)
	assert.Empty(t, d.Location)

	custom := authz.Gate{LoginPath: "/signin"}
	assert.Equal(t, "/signin", custom.Route(nil).Location)
}

func TestEmptyRoleListSeesEverySection(t *testing.T) {
	gate := authz.NewGate()
	c := checkerFor()
	for _, res := range []string{authz.ResourceUsers, authz.ResourceRoles, "reports"} {
		assert.False(t, c.HasPermission(authz.Perm(res, authz.ActionView)))
		assert.True(t, gate.SectionVisible(c, res), res)
	}
}

func TestLegacyAccountScenario(t *testing.T) {
	gate := authz.NewGate()
	c := checkerFor(authz.Role{Name: "LEGACY", Permissions: []string{}})

	assert.False(t, c.HasPermission("users:delete"))
	assert.True(t, gate.SectionVisible(c, authz.ResourceUsers))
	assert.False(t, gate.ActionAllowed(c, authz.ResourceUsers, authz.ActionDelete))
}

func TestLegacyAccountFallbackDisabled(t *testing.T) {
	p := authz.DefaultPolicy()
	p.AllowWhenNoPermissions = false
	gate := authz.NewGate()
	c := authz.NewChecker(authz.NewUser("u", []authz.Role{{Name: "LEGACY"}}), p)

	assert.False(t, gate.SectionVisible(c, authz.ResourceUsers))
	assert.False(t, gate.SectionVisible(c, authz.ResourceRoles))
}

func TestScopedEditorScenario(t *testing.T) {
	gate := authz.NewGate()
	c := checkerFor(authz.Role{Name: "EDITOR", Permissions: []string{"users:view", "users:edit"}})

	assert.True(t, c.HasPermission("users:edit"))
	assert.False(t, c.HasPermission("users:delete"))
	assert.True(t, c.HasAnyPermission([]string{"users:view", "users:create", "users:edit", "users:delete"}))
	assert.True(t, gate.SectionVisible(c, authz.ResourceUsers))
	assert.False(t, gate.ActionAllowed(c, authz.ResourceUsers, authz.ActionDelete))
	assert.True(t, gate.ActionAllowed(c, authz.ResourceUsers, authz.ActionEdit))

	// Non-empty set: the fallback no longer hides the lack of roles permissions.
	assert.False(t, gate.SectionVisible(c, authz.ResourceRoles))
}

func TestMultiRoleUnion(t *testing.T) {
	c := checkerFor(
		authz.Role{Name: "A", Permissions: []string{"users:view"}},
		authz.Role{Name: "B", Permissions: []string{"roles:view", "roles:edit"}},
	)
	set := c.Permissions()
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"roles:edit", "roles:view", "users:view"}, set.Sorted())
}

func TestRootOverrideScenario(t *testing.T) {
	gate := authz.NewGate()
	c := checkerFor(authz.Role{Name: "ADMIN", Permissions: []string{}})

	assert.True(t, c.IsRoot())
	for _, res := range []string{authz.ResourceUsers, authz.ResourceRoles} {
		assert.True(t, gate.SectionVisible(c, res))
		for _, act := range authz.Actions() {
			assert.True(t, gate.ActionAllowed(c, res, act), "%s:%s", res, act)
		}
	}
}

func TestNavigation(t *testing.T) {
	gate := authz.NewGate()
	c := checkerFor(authz.Role{Name: "EDITOR", Permissions: []string{"users:view", "users:edit"}})

	nav := gate.Navigation(c)
	assert.Len(t, nav, 2)

	users, roles := nav[0], nav[1]
	assert.Equal(t, "users", users.Key)
	assert.True(t, users.Visible)
	assert.Equal(t, map[string]bool{"view": true, "create": false, "edit": true, "delete": false}, users.Actions)

	assert.Equal(t, "roles", roles.Key)
	assert.False(t, roles.Visible)
	for _, allowed := range roles.Actions {
		assert.False(t, allowed)
	}
}

func TestNavigationUnauthenticated(t *testing.T) {
	nav := authz.NewGate().Navigation(nil)
	for _, e := range nav {
		assert.False(t, e.Visible)
		for _, allowed := range e.Actions {
			assert.False(t, allowed)
		}
	}
}
