// Package caseless implements the case-folded name index used everywhere
// sibling names are compared. The control-system database is
// case-insensitive but case-preserving; an Index maps any-case queries to
// the canonical name the database reported.
package caseless

import "strings"

// Index maps a lower-cased name to its canonical (original-case) form
// within one sibling set. Indexes are value types built fresh from each
// enumeration result and never shared mutably between requests.
type Index struct {
	canonical map[string]string
	names     []string
	collision bool
}

// Build constructs an Index from an enumeration result. The database
// guarantees uniqueness up to case; if it ever violates that, the
// first-seen name wins and the collision is recorded for Collided.
func Build(names []string) Index {
	idx := Index{
		canonical: make(map[string]string, len(names)),
		names:     make([]string, 0, len(names)),
	}
	for _, name := range names {
		key := strings.ToLower(name)
		if _, dup := idx.canonical[key]; dup {
			idx.collision = true
			continue
		}
		idx.canonical[key] = name
		idx.names = append(idx.names, name)
	}
	return idx
}

// Lookup returns the canonical form of query, matching case-insensitively.
func (i Index) Lookup(query string) (string, bool) {
	name, ok := i.canonical[strings.ToLower(query)]
	return name, ok
}

// Contains reports whether query names a member of the sibling set.
func (i Index) Contains(query string) bool {
	_, ok := i.Lookup(query)
	return ok
}

// Names returns the canonical names in first-seen enumeration order.
// The returned slice is shared; callers must not mutate it.
func (i Index) Names() []string { return i.names }

// Len returns the number of distinct names.
func (i Index) Len() int { return len(i.names) }

// Collided reports whether the enumeration carried two names differing
// only in case. Lookups still work deterministically (first seen wins),
// but callers may want to surface the contract violation.
func (i Index) Collided() bool { return i.collision }

// Fold is the canonical key form used for coordinate equality and cache
// keying: plain lower-casing, matching how the database compares names.
func Fold(name string) string { return strings.ToLower(name) }
