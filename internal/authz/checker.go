package authz

// Policy tunes the privileged-role and fallback behavior of the model.
type Policy struct {
	// RootRoles are role names that act as a superuser escape hatch.
	RootRoles []string
	// WildcardPermission, when non-empty, marks any role carrying it as root.
	WildcardPermission string
	// AllowWhenNoPermissions makes every navigation section visible to users
	// whose effective set is empty. It never applies to action gates.
	AllowWhenNoPermissions bool
	// RootShortCircuit makes HasPermission, HasAnyPermission and
	// HasAllPermissions return true for root users. Off by default: callers
	// OR IsRoot themselves, usually through Gate.
	RootShortCircuit bool
}

// DefaultPolicy mirrors the console's observed behavior.
func DefaultPolicy() Policy {
	return Policy{
		RootRoles:              []string{"ROOT", "ADMIN"},
		WildcardPermission:     "*",
		AllowWhenNoPermissions: true,
	}
}

// Checker answers point queries against one user snapshot.
type Checker struct {
	user   *User
	set    Set
	policy Policy
	root   bool
}

// NewChecker builds the effective set for u once. A nil user produces a
// checker that denies everything.
func NewChecker(u *User, policy Policy) *Checker {
	c := &Checker{user: u, set: Effective(u), policy: policy}
	c.root = c.computeRoot()
	return c
}

func (c *Checker) computeRoot() bool {
	if c.user == nil {
		return false
	}
	for _, r := range c.user.Roles {
		for _, name := range c.policy.RootRoles {
			if r.Name == name {
				return true
			}
		}
		if c.policy.WildcardPermission == "" {
			continue
		}
		for _, p := range r.Permissions {
			if p == c.policy.WildcardPermission {
				return true
			}
		}
	}
	return false
}

// Authenticated reports whether the checker was built from a real user.
func (c *Checker) Authenticated() bool {
	return c != nil && c.user != nil
}

// User returns the snapshot the checker evaluates.
func (c *Checker) User() *User {
	if c == nil {
		return nil
	}
	return c.user
}

// Policy returns the policy in effect.
func (c *Checker) Policy() Policy {
	if c == nil {
		return Policy{}
	}
	return c.policy
}

// Permissions returns the effective set.
func (c *Checker) Permissions() Set {
	if c == nil {
		return Effective(nil)
	}
	return c.set
}

// HasPermission is an exact membership test against the effective set.
func (c *Checker) HasPermission(p string) bool {
	if !c.Authenticated() {
		return false
	}
	if c.policy.RootShortCircuit && c.root {
		return true
	}
	return c.set.Has(p)
}

// HasAnyPermission reports whether at least one of ps is granted. An empty
// list is false.
func (c *Checker) HasAnyPermission(ps []string) bool {
	if !c.Authenticated() || len(ps) == 0 {
		return false
	}
	if c.policy.RootShortCircuit && c.root {
		return true
	}
	for _, p := range ps {
		if c.set.Has(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every permission in ps is granted. An
// empty list is true for an authenticated user.
func (c *Checker) HasAllPermissions(ps []string) bool {
	if !c.Authenticated() {
		return false
	}
	if c.policy.RootShortCircuit && c.root {
		return true
	}
	for _, p := range ps {
		if !c.set.Has(p) {
			return false
		}
	}
	return true
}

// HasRole is an exact, case-sensitive role-name match.
func (c *Checker) HasRole(name string) bool {
	if !c.Authenticated() {
		return false
	}
	for _, r := range c.user.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// IsRoot reports whether the user holds a privileged role.
func (c *Checker) IsRoot() bool {
	return c.Authenticated() && c.root
}
