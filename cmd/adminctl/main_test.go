package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminkit.org/internal/seed"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestAuthzExplain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor.yaml")
	doc := "id: u1\nroles:\n  - name: EDITOR\n    permissions: [users:view, users:edit]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := runCLI(t, "authz", "explain", path)
	require.NoError(t, err)

	var ex seed.Explanation
	require.NoError(t, json.Unmarshal([]byte(out), &ex))
	assert.True(t, ex.Authenticated)
	assert.False(t, ex.Root)
	assert.Equal(t, []string{"users:edit", "users:view"}, ex.Permissions)
	require.Len(t, ex.Sections, 2)
	assert.True(t, ex.Sections[0].Visible)
	assert.False(t, ex.Sections[1].Visible)
}

func TestAuthzExplainRequiresFile(t *testing.T) {
	_, err := runCLI(t, "authz", "explain")
	assert.Error(t, err)
}

func TestRolesImportRequiresDSN(t *testing.T) {
	t.Setenv("PG_DSN", "")
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  - name: EDITOR\n"), 0o600))

	_, err := runCLI(t, "roles", "import", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing DSN")
}
