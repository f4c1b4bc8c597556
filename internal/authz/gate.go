package authz

// RouteOutcome is the result of the route-level gate.
type RouteOutcome int

const (
	Redirect RouteOutcome = iota
	Proceed
)

func (o RouteOutcome) String() string {
	if o == Proceed {
		return "proceed"
	}
	return "redirect"
}

// RouteDecision tells the caller where an unauthenticated session goes.
type RouteDecision struct {
	Outcome  RouteOutcome
	Location string
}

// Section is a protected navigation entry backed by one resource.
type Section struct {
	Key      string
	Label    string
	Path     string
	Resource string
}

// NavEntry is one rendered navigation item.
type NavEntry struct {
	Key     string          `json:"key"`
	Label   string          `json:"label"`
	Path    string          `json:"path"`
	Visible bool            `json:"visible"`
	Actions map[string]bool `json:"actions"`
}

// Gate applies a Checker to routes, navigation sections and actions.
type Gate struct {
	LoginPath string
	Sections  []Section
}

// DefaultSections are the console's protected sections.
func DefaultSections() []Section {
	return []Section{
		{Key: "users", Label: "Users", Path: "/users", Resource: ResourceUsers},
		{Key: "roles", Label: "Roles & Permissions", Path: "/roles", Resource: ResourceRoles},
	}
}

// NewGate returns a gate with the default sections.
func NewGate() Gate {
	return Gate{LoginPath: "/login", Sections: DefaultSections()}
}

// Route is authentication-only: permissions are checked inside pages.
func (g Gate) Route(c *Checker) RouteDecision {
	if !c.Authenticated() {
		loc := g.LoginPath
		if loc == "" {
			loc = "/login"
		}
		return RouteDecision{Outcome: Redirect, Location: loc}
	}
	return RouteDecision{Outcome: Proceed}
}

// SectionVisible is the coarse resource-level check. Users with an empty
// effective set see every section when the policy fallback is enabled.
func (g Gate) SectionVisible(c *Checker, resource string) bool {
	if !c.Authenticated() {
		return false
	}
	if c.IsRoot() {
		return true
	}
	if c.Policy().AllowWhenNoPermissions && c.Permissions().Empty() {
		return true
	}
	return c.HasAnyPermission(ResourcePermissions(resource))
}

// ActionAllowed gates a single control. The empty-set fallback never applies.
func (g Gate) ActionAllowed(c *Checker, resource, action string) bool {
	return g.PermissionAllowed(c, Perm(resource, action))
}

// PermissionAllowed is ActionAllowed for an already-built permission token.
func (g Gate) PermissionAllowed(c *Checker, permission string) bool {
	if !c.Authenticated() {
		return false
	}
	return c.IsRoot() || c.HasPermission(permission)
}

// Navigation renders every section with its visibility and action flags.
func (g Gate) Navigation(c *Checker) []NavEntry {
	entries := make([]NavEntry, 0, len(g.Sections))
	for _, s := range g.Sections {
		actions := make(map[string]bool, len(Actions()))
		for _, a := range Actions() {
			actions[a] = g.ActionAllowed(c, s.Resource, a)
		}
		entries = append(entries, NavEntry{
			Key:     s.Key,
			Label:   s.Label,
			Path:    s.Path,
			Visible: g.SectionVisible(c, s.Resource),
			Actions: actions,
		})
	}
	return entries
}
