package auth

import "adminkit.org/internal/authz"

// Principal represents a user with resolved roles and an access checker
// built from that exact snapshot.
type Principal struct {
	User   *User
	Access *authz.Checker
}

// NewPrincipal builds the checker for user under policy.
func NewPrincipal(user *User, policy authz.Policy) Principal {
	if user == nil {
		return Principal{Access: authz.NewChecker(nil, policy)}
	}
	return Principal{User: user, Access: authz.NewChecker(user.Snapshot(), policy)}
}

// HasPermission reports whether the principal holds key. Root users are not
// special-cased here; use authz.Gate for that.
func (p Principal) HasPermission(key string) bool {
	return p.Access.HasPermission(key)
}

// IsRoot reports whether the principal holds a privileged role.
func (p Principal) IsRoot() bool {
	return p.Access.IsRoot()
}

// Permissions returns the sorted effective permission set.
func (p Principal) Permissions() []string {
	return p.Access.Permissions().Sorted()
}
