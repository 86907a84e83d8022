// Package filter scopes a sweep to a subset of families.
package filter

import (
	"strings"

	"github.com/yairfalse/vacuum/pkg/revision"
)

// Filter controls which families a sweep may touch. Families that are
// filtered out never reach the retention engine and are never deleted.
type Filter struct {
	include []string
	exclude []string
}

// New creates a new Filter from family-name substrings.
func New(include, exclude []string) *Filter {
	return &Filter{
		include: nonEmpty(include),
		exclude: nonEmpty(exclude),
	}
}

// ShouldIncludeFamily returns true if the family name passes the filter.
func (f *Filter) ShouldIncludeFamily(name string) bool {
	if f == nil {
		return true
	}

	// Include (whitelist) - ANY match includes
	if len(f.include) > 0 && !containsAny(name, f.include) {
		return false
	}

	// Exclude (blacklist) - ANY match excludes
	return !containsAny(name, f.exclude)
}

// Apply returns an inventory holding only the families that pass.
func (f *Filter) Apply(inv revision.Inventory) revision.Inventory {
	if f.IsEmpty() {
		return inv
	}
	return inv.Select(func(_, name string) bool {
		return f.ShouldIncludeFamily(name)
	})
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.include) == 0 && len(f.exclude) == 0)
}

func containsAny(name string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
