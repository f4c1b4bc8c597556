package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
	"adminkit.org/internal/store/memory"
)

const roleYAML = `
roles:
  - name: EDITOR
    description: Edits users
    permissions: [users:view, users:edit]
  - name: AUDITOR
    permissions: [users:view, roles:view]
`

func newService(t *testing.T) *auth.RBACService {
	t.Helper()
	svc, err := auth.NewRBACService(memory.New())
	require.NoError(t, err)
	require.NoError(t, svc.EnsureBuiltins(context.Background()))
	return svc
}

func TestLoadRolesRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"unknown":   "roles:\n  - name: X\n    colour: red\n",
		"nameless":  "roles:\n  - permissions: [users:view]\n",
		"duplicate": "roles:\n  - name: EDITOR\n  - name: EDITOR\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRoles(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestImportRolesCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	f, err := LoadRoles(strings.NewReader(roleYAML))
	require.NoError(t, err)
	res, err := ImportRoles(ctx, svc, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"EDITOR", "AUDITOR"}, res.Created)
	assert.Empty(t, res.Updated)

	f.Roles[0].Permissions = []string{"users:view"}
	f.Roles[0].Description = "Reads users"
	res, err = ImportRoles(ctx, svc, f)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"EDITOR", "AUDITOR"}, res.Updated)

	editor, err := svc.FindRoleByName(ctx, "EDITOR")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:view"}, editor.Permissions)
	assert.Equal(t, "Reads users", editor.Description)
}

func TestImportRolesUnknownPermission(t *testing.T) {
	f := RoleFile{Roles: []RoleDef{{Name: "BROKEN", Permissions: []string{"reports:view"}}}}
	_, err := ImportRoles(context.Background(), newService(t), f)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestExplainSnapshots(t *testing.T) {
	policy := authz.DefaultPolicy()
	gate := authz.NewGate()

	t.Run("unauthenticated", func(t *testing.T) {
		u, err := LoadSnapshot(strings.NewReader(""))
		require.NoError(t, err)
		assert.Nil(t, u)
		ex := Explain(u, policy, gate)
		assert.False(t, ex.Authenticated)
		assert.Equal(t, "redirect", ex.Route)
	})

	t.Run("admin override", func(t *testing.T) {
		u, err := LoadSnapshot(strings.NewReader("id: u1\nroles:\n  - name: ADMIN\n"))
		require.NoError(t, err)
		ex := Explain(u, policy, gate)
		assert.True(t, ex.Root)
		assert.Empty(t, ex.Permissions)
		for _, s := range ex.Sections {
			assert.True(t, s.Visible, s.Key)
			assert.True(t, s.Actions[authz.ActionDelete], s.Key)
		}
	})

	t.Run("scoped editor", func(t *testing.T) {
		doc := "id: u2\nroles:\n  - name: EDITOR\n    permissions: [users:view, users:edit, users:view]\n"
		u, err := LoadSnapshot(strings.NewReader(doc))
		require.NoError(t, err)
		ex := Explain(u, policy, gate)
		assert.Equal(t, "proceed", ex.Route)
		assert.Equal(t, []string{"users:edit", "users:view"}, ex.Permissions)
		assert.False(t, ex.Root)
	})
}
