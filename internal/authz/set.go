package authz

import "sort"

// Set is an immutable, deduplicated collection of permission strings.
type Set struct {
	items  map[string]struct{}
	sorted []string
}

// Effective builds the union of permissions across all of the user's roles.
// A nil user, a user without roles and roles without permissions all yield
// the empty set.
func Effective(u *User) Set {
	items := make(map[string]struct{})
	if u != nil {
		for _, r := range u.Roles {
			for _, p := range r.Permissions {
				items[p] = struct{}{}
			}
		}
	}
	sorted := make([]string, 0, len(items))
	for p := range items {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)
	return Set{items: items, sorted: sorted}
}

// Has reports exact membership.
func (s Set) Has(p string) bool {
	_, ok := s.items[p]
	return ok
}

// Len returns the number of distinct permissions.
func (s Set) Len() int { return len(s.sorted) }

// Empty reports whether the set holds no permissions.
func (s Set) Empty() bool { return len(s.sorted) == 0 }

// Sorted returns the permissions in lexical order. The result is a copy.
func (s Set) Sorted() []string {
	out := make([]string, len(s.sorted))
	copy(out, s.sorted)
	return out
}

// Equal reports whether both sets hold the same permissions.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := range s.sorted {
		if s.sorted[i] != other.sorted[i] {
			return false
		}
	}
	return true
}
