// Package seed reads YAML role definitions and user snapshots for the
// admin CLI.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
)

// RoleFile is the document accepted by `adminctl roles import`.
//
//	roles:
//	  - name: EDITOR
//	    description: Edits users
//	    permissions: [users:view, users:edit]
type RoleFile struct {
	Roles []RoleDef `yaml:"roles"`
}

type RoleDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// RoleWriter is the subset of RBACService used by ImportRoles.
type RoleWriter interface {
	FindRoleByName(ctx context.Context, name string) (auth.Role, error)
	CreateRole(ctx context.Context, name, description string, permissions []string) (auth.Role, error)
	UpdateRole(ctx context.Context, roleID string, upd auth.RoleUpdate) (auth.Role, error)
	SetRolePermissions(ctx context.Context, roleID string, permissions []string) error
}

// ImportResult lists role names by what happened to them.
type ImportResult struct {
	Created []string
	Updated []string
}

// LoadRoles decodes a RoleFile, rejecting unknown keys and nameless roles.
func LoadRoles(r io.Reader) (RoleFile, error) {
	var f RoleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return RoleFile{}, errors.New("seed: empty role file")
		}
		return RoleFile{}, fmt.Errorf("seed: decode roles: %w", err)
	}
	seen := make(map[string]bool, len(f.Roles))
	for i, r := range f.Roles {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return RoleFile{}, fmt.Errorf("seed: role #%d has no name", i+1)
		}
		if seen[name] {
			return RoleFile{}, fmt.Errorf("seed: role %q defined twice", name)
		}
		seen[name] = true
		f.Roles[i].Name = name
	}
	return f, nil
}

// ImportRoles creates missing roles and replaces description and permissions
// of existing ones. Roles absent from the file are left untouched.
func ImportRoles(ctx context.Context, w RoleWriter, f RoleFile) (ImportResult, error) {
	var res ImportResult
	for _, def := range f.Roles {
		existing, err := w.FindRoleByName(ctx, def.Name)
		switch {
		case errors.Is(err, auth.ErrNotFound):
			if _, err := w.CreateRole(ctx, def.Name, def.Description, def.Permissions); err != nil {
				return res, fmt.Errorf("create role %s: %w", def.Name, err)
			}
			res.Created = append(res.Created, def.Name)
		case err != nil:
			return res, fmt.Errorf("find role %s: %w", def.Name, err)
		default:
			desc := def.Description
			if _, err := w.UpdateRole(ctx, existing.ID, auth.RoleUpdate{Description: &desc}); err != nil {
				return res, fmt.Errorf("update role %s: %w", def.Name, err)
			}
			if err := w.SetRolePermissions(ctx, existing.ID, def.Permissions); err != nil {
				return res, fmt.Errorf("set permissions for %s: %w", def.Name, err)
			}
			res.Updated = append(res.Updated, def.Name)
		}
	}
	return res, nil
}

// SnapshotFile describes one user and the roles it holds, for offline
// evaluation with `adminctl authz explain`.
//
//	id: u1
//	roles:
//	  - name: EDITOR
//	    permissions: [users:view]
type SnapshotFile struct {
	ID    string    `yaml:"id"`
	Roles []RoleDef `yaml:"roles"`
}

// LoadSnapshot decodes a SnapshotFile into an authorization snapshot. A
// document without an id yields a nil user.
func LoadSnapshot(r io.Reader) (*authz.User, error) {
	var f SnapshotFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: decode snapshot: %w", err)
	}
	if strings.TrimSpace(f.ID) == "" {
		return nil, nil
	}
	roles := make([]authz.Role, 0, len(f.Roles))
	for _, r := range f.Roles {
		roles = append(roles, authz.Role{Name: r.Name, Permissions: r.Permissions})
	}
	return authz.NewUser(f.ID, roles), nil
}

// Explanation is the full decision surface for one snapshot.
type Explanation struct {
	Authenticated bool             `json:"authenticated"`
	Root          bool             `json:"root"`
	Permissions   []string         `json:"permissions"`
	Route         string           `json:"route"`
	Sections      []authz.NavEntry `json:"sections"`
}

// Explain evaluates user under policy and gate.
func Explain(user *authz.User, policy authz.Policy, gate authz.Gate) Explanation {
	c := authz.NewChecker(user, policy)
	return Explanation{
		Authenticated: c.Authenticated(),
		Root:          c.IsRoot(),
		Permissions:   c.Permissions().Sorted(),
		Route:         gate.Route(c).Outcome.String(),
		Sections:      gate.Navigation(c),
	}
}
