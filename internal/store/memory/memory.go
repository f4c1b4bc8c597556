// Package memory provides an in-process RBAC store used for development and
// tests. It applies the same uniqueness and referential rules as the
// Postgres schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/ids"
)

type userRecord struct {
	user    auth.User
	roleIDs []string
	// assigned tracks creation time per role for assignment records.
	assigned map[string]time.Time
}

type roleRecord struct {
	role auth.Role
}

// Store is a mutex-guarded map store.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*userRecord
	roles       map[string]*roleRecord
	permissions map[string]auth.Permission
	audit       []auth.AuditEntry
	now         func() time.Time
}

var _ auth.RBACStore = (*Store)(nil)

func New() *Store {
	return &Store{
		users:       make(map[string]*userRecord),
		roles:       make(map[string]*roleRecord),
		permissions: make(map[string]auth.Permission),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateUser(ctx context.Context, in auth.NewUser) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loginTakenLocked(in.Username, in.Email, "") {
		return auth.User{}, auth.ErrConflict
	}
	for _, roleID := range in.RoleIDs {
		if _, ok := s.roles[roleID]; !ok {
			return auth.User{}, fmt.Errorf("%w: role %s", auth.ErrNotFound, roleID)
		}
	}
	now := s.now()
	rec := &userRecord{
		user: auth.User{
			ID:           ids.New(),
			Name:         in.Name,
			Username:     in.Username,
			Email:        in.Email,
			Status:       in.Status,
			PasswordHash: in.PasswordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		assigned: make(map[string]time.Time),
	}
	for _, roleID := range in.RoleIDs {
		rec.roleIDs = append(rec.roleIDs, roleID)
		rec.assigned[roleID] = now
	}
	s.users[rec.user.ID] = rec
	return s.hydrateLocked(rec), nil
}

func (s *Store) ListUsers(ctx context.Context, filter auth.ListFilter) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []auth.User
	for _, rec := range s.users {
		if search != "" && !matches(rec.user, search) {
			continue
		}
		out = append(out, s.hydrateLocked(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return s.hydrateLocked(rec), nil
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if rec.user.Username == login || rec.user.Email == login {
			return s.hydrateLocked(rec), nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) UpdateUser(ctx context.Context, userID string, upd auth.UserUpdate) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	username, email := rec.user.Username, rec.user.Email
	if upd.Username != nil {
		username = *upd.Username
	}
	if upd.Email != nil {
		email = *upd.Email
	}
	if s.loginTakenLocked(username, email, userID) {
		return auth.User{}, auth.ErrConflict
	}
	if upd.Name != nil {
		rec.user.Name = *upd.Name
	}
	if upd.Status != nil {
		rec.user.Status = *upd.Status
	}
	if upd.Password != nil {
		rec.user.PasswordHash = *upd.Password
	}
	rec.user.Username, rec.user.Email = username, email
	rec.user.UpdatedAt = s.now()
	return s.hydrateLocked(rec), nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, userID)
	return nil
}

func (s *Store) CreateRole(ctx context.Context, name, description string, permissionKeys []string) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.role.Name == name {
			return auth.Role{}, auth.ErrConflict
		}
	}
	if err := s.checkPermissionsLocked(permissionKeys); err != nil {
		return auth.Role{}, err
	}
	now := s.now()
	rec := &roleRecord{role: auth.Role{
		ID:          ids.New(),
		Name:        name,
		Description: description,
		Permissions: append([]string{}, permissionKeys...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	s.roles[rec.role.ID] = rec
	return cloneRole(rec.role), nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, cloneRole(r.role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return cloneRole(r.role), nil
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.role.Name == name {
			return cloneRole(r.role), nil
		}
	}
	return auth.Role{}, auth.ErrNotFound
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, upd auth.RoleUpdate) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		for id, other := range s.roles {
			if id != roleID && other.role.Name == *upd.Name {
				return auth.Role{}, auth.ErrConflict
			}
		}
		r.role.Name = *upd.Name
	}
	if upd.Description != nil {
		r.role.Description = *upd.Description
	}
	r.role.UpdatedAt = s.now()
	return cloneRole(r.role), nil
}

// DeleteRole removes the role and every assignment of it.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.roles, roleID)
	for _, u := range s.users {
		u.removeRole(roleID)
	}
	return nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if _, ok := s.permissions[p.Key]; ok {
			continue
		}
		s.permissions[p.Key] = p
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return auth.ErrNotFound
	}
	if err := s.checkPermissionsLocked(permissionKeys); err != nil {
		return err
	}
	r.role.Permissions = append([]string{}, permissionKeys...)
	r.role.UpdatedAt = s.now()
	return nil
}

func (s *Store) AssignRoleToUser(ctx context.Context, userID, roleID string) (auth.UserRoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.UserRoleAssignment{}, auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.UserRoleAssignment{}, auth.ErrNotFound
	}
	if _, ok := u.assigned[roleID]; ok {
		return auth.UserRoleAssignment{}, auth.ErrConflict
	}
	now := s.now()
	u.roleIDs = append(u.roleIDs, roleID)
	u.assigned[roleID] = now
	return auth.UserRoleAssignment{UserID: userID, RoleID: roleID, CreatedAt: now}, nil
}

func (s *Store) RemoveRoleAssignment(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	if !u.removeRole(roleID) {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) loginTakenLocked(username, email, exceptID string) bool {
	for id, rec := range s.users {
		if id == exceptID {
			continue
		}
		if rec.user.Username == username || rec.user.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) checkPermissionsLocked(keys []string) error {
	for _, key := range keys {
		if _, ok := s.permissions[key]; !ok {
			return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, key)
		}
	}
	return nil
}

// hydrateLocked returns a copy of the user with roles in assignment order.
func (s *Store) hydrateLocked(rec *userRecord) auth.User {
	u := rec.user
	u.Roles = make([]auth.Role, 0, len(rec.roleIDs))
	for _, roleID := range rec.roleIDs {
		if r, ok := s.roles[roleID]; ok {
			u.Roles = append(u.Roles, cloneRole(r.role))
		}
	}
	return u
}

func (u *userRecord) removeRole(roleID string) bool {
	if _, ok := u.assigned[roleID]; !ok {
		return false
	}
	delete(u.assigned, roleID)
	for i, id := range u.roleIDs {
		if id == roleID {
			u.roleIDs = append(u.roleIDs[:i], u.roleIDs[i+1:]...)
			break
		}
	}
	return true
}

func cloneRole(r auth.Role) auth.Role {
	r.Permissions = append([]string{}, r.Permissions...)
	return r
}

func matches(u auth.User, search string) bool {
	return strings.Contains(strings.ToLower(u.Name), search) ||
		strings.Contains(u.Username, search) ||
		strings.Contains(u.Email, search)
}

func (s *Store) AppendAudit(ctx context.Context, entry auth.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Fields = cloneFields(entry.Fields)
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Event != "" && e.Event != filter.Event {
			continue
		}
		e.Fields = cloneFields(e.Fields)
		out = append(out, e)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneFields(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
