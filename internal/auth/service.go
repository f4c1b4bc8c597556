package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MinNameLength     = 5
	MinUsernameLength = 5
	MinRoleNameLength = 4
)

// RBACService validates and normalizes console operations before they reach
// the store. Every mutation that can change a user snapshot invalidates the
// snapshot cache.
type RBACService struct {
	store       RBACStore
	invalidator Invalidator
	validate    *validator.Validate
}

// RBACOption configures RBACService.
type RBACOption func(*RBACService)

// WithInvalidator registers the snapshot cache to flush on mutation.
func WithInvalidator(inv Invalidator) RBACOption {
	return func(s *RBACService) { s.invalidator = inv }
}

func NewRBACService(store RBACStore, opts ...RBACOption) (*RBACService, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	s := &RBACService{store: store, validate: validator.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoadUser implements UserLoader directly against the store.
func (s *RBACService) LoadUser(ctx context.Context, userID string) (User, error) {
	return s.GetUser(ctx, userID)
}

// EnsureBuiltins ensures predefined permissions exist.
func (s *RBACService) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

func (s *RBACService) Permissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// Authenticate checks credentials by username or email. Unknown users, wrong
// passwords and disabled accounts are indistinguishable to the caller.
func (s *RBACService) Authenticate(ctx context.Context, login, password string) (User, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	if login == "" || password == "" {
		return User{}, ErrUnauthorized
	}
	user, err := s.store.FindUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrUnauthorized
		}
		return User{}, err
	}
	if !user.Active() || !user.HasPassword() {
		return User{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return User{}, ErrUnauthorized
	}
	return user, nil
}

func (s *RBACService) CreateUser(ctx context.Context, name, username, email, password, status string, roleIDs []string) (User, error) {
	in := NewUser{RoleIDs: dedupeStrings(roleIDs)}
	var err error
	if in.Name, err = normalizeName(name); err != nil {
		return User{}, err
	}
	if in.Username, err = normalizeUsername(username); err != nil {
		return User{}, err
	}
	if in.Email, err = s.normalizeEmail(email); err != nil {
		return User{}, err
	}
	if in.Status, err = normalizeStatus(status); err != nil {
		return User{}, err
	}
	if password != "" {
		if in.PasswordHash, err = hashValidPassword(password); err != nil {
			return User{}, err
		}
	}
	user, err := s.store.CreateUser(ctx, in)
	if err != nil {
		return User{}, err
	}
	return user, s.invalidate(ctx)
}

func (s *RBACService) ListUsers(ctx context.Context, filter ListFilter) ([]User, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListUsers(ctx, filter)
}

func (s *RBACService) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, userID)
}

func (s *RBACService) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name, err := normalizeName(*upd.Name)
		if err != nil {
			return User{}, err
		}
		upd.Name = &name
	}
	if upd.Username != nil {
		username, err := normalizeUsername(*upd.Username)
		if err != nil {
			return User{}, err
		}
		upd.Username = &username
	}
	if upd.Email != nil {
		email, err := s.normalizeEmail(*upd.Email)
		if err != nil {
			return User{}, err
		}
		upd.Email = &email
	}
	if upd.Status != nil {
		status, err := normalizeStatus(*upd.Status)
		if err != nil {
			return User{}, err
		}
		upd.Status = &status
	}
	if upd.Password != nil {
		hash, err := hashValidPassword(*upd.Password)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	user, err := s.store.UpdateUser(ctx, userID, upd)
	if err != nil {
		return User{}, err
	}
	return user, s.invalidate(ctx)
}

// SetUserPassword changes a user's own password after checking the current one.
func (s *RBACService) SetUserPassword(ctx context.Context, userID, current, next string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPassword() {
		if err := VerifyPassword(user.PasswordHash, current); err != nil {
			return ErrUnauthorized
		}
	}
	_, err = s.UpdateUser(ctx, userID, UserUpdate{Password: &next})
	return err
}

func (s *RBACService) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string, permissions []string) (Role, error) {
	name = strings.TrimSpace(name)
	if len(name) < MinRoleNameLength {
		return Role{}, fmt.Errorf("%w: role name must be at least %d characters", ErrInvalidInput, MinRoleNameLength)
	}
	role, err := s.store.CreateRole(ctx, name, strings.TrimSpace(description), dedupeStrings(permissions))
	if err != nil {
		return Role{}, err
	}
	return role, s.invalidate(ctx)
}

func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *RBACService) FindRoleByName(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.FindRoleByName(ctx, name)
}

func (s *RBACService) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if len(name) < MinRoleNameLength {
			return Role{}, fmt.Errorf("%w: role name must be at least %d characters", ErrInvalidInput, MinRoleNameLength)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	role, err := s.store.UpdateRole(ctx, roleID, upd)
	if err != nil {
		return Role{}, err
	}
	return role, s.invalidate(ctx)
}

func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *RBACService) SetRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := s.store.SetRolePermissions(ctx, roleID, dedupeStrings(permissions)); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *RBACService) AssignRoleToUser(ctx context.Context, userID, roleID string) (UserRoleAssignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return UserRoleAssignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	a, err := s.store.AssignRoleToUser(ctx, userID, roleID)
	if err != nil {
		return UserRoleAssignment{}, err
	}
	return a, s.invalidate(ctx)
}

func (s *RBACService) RemoveRoleAssignment(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := s.store.RemoveRoleAssignment(ctx, userID, roleID); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *RBACService) invalidate(ctx context.Context) error {
	if s.invalidator == nil {
		return nil
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate snapshot cache: %w", err)
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < MinNameLength {
		return "", fmt.Errorf("%w: name must be at least %d characters", ErrInvalidInput, MinNameLength)
	}
	return name, nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if len(username) < MinUsernameLength {
		return "", fmt.Errorf("%w: username must be at least %d characters", ErrInvalidInput, MinUsernameLength)
	}
	if strings.ContainsAny(username, " @") {
		return "", fmt.Errorf("%w: username must not contain spaces or '@'", ErrInvalidInput)
	}
	return username, nil
}

func (s *RBACService) normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}

func normalizeStatus(status string) (string, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		status = UserStatusActive
	}
	if status != UserStatusActive && status != UserStatusDisabled {
		return "", fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return status, nil
}

func hashValidPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	return HashPassword(password)
}

// dedupeStrings trims, drops empties and duplicates, and sorts the result.
func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}
