// Package retention decides which versions of each family to keep and
// which to delete. It performs no I/O: decisions are computed from an
// inventory snapshot and a reference snapshot only.
package retention

import (
	"fmt"
	"strings"

	"github.com/yairfalse/vacuum/pkg/revision"
)

// Policy is the keep-policy for one sweep.
type Policy struct {
	// KeepCount is the number of newest versions kept by the newest and
	// versions rules.
	KeepCount int
	// KeepRecent is the window of newest versions the unused rule keeps
	// before deleting unreferenced ones. Zero disables the window.
	KeepRecent int
	// Whitelist holds family-name substrings. Matching families ignore
	// references and keep only the newest KeepCount versions.
	Whitelist []string
	// Rule applies to families that do not match the whitelist.
	Rule revision.Rule
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.KeepCount < 1 {
		return fmt.Errorf("keep count must be positive (got %d)", p.KeepCount)
	}
	if p.KeepRecent < 0 {
		return fmt.Errorf("keep recent must not be negative (got %d)", p.KeepRecent)
	}
	switch p.Rule {
	case "", revision.RuleUnused, revision.RuleNewest, revision.RuleVersions:
	default:
		return fmt.Errorf("unknown rule %q", p.Rule)
	}
	return nil
}

// Whitelisted reports whether a family name matches any whitelist entry.
func (p Policy) Whitelisted(name string) bool {
	for _, w := range p.Whitelist {
		if w != "" && strings.Contains(name, w) {
			return true
		}
	}
	return false
}

// RuleFor returns the rule governing a family.
func (p Policy) RuleFor(name string) revision.Rule {
	if p.Whitelisted(name) {
		return revision.RuleNewest
	}
	if p.Rule == "" {
		return revision.RuleUnused
	}
	return p.Rule
}

// Decide computes one decision per family in a single pass over the
// snapshots. Identical inputs always produce an identical plan.
func Decide(inv revision.Inventory, refs revision.ReferenceSet, p Policy) revision.Plan {
	plan := revision.Plan{
		Decisions: make([]revision.Decision, 0, inv.FamilyCount()),
	}

	for _, family := range inv.Families() {
		plan.Decisions = append(plan.Decisions, decideFamily(family, inv.Name(family), inv.Versions(family), refs, p))
	}

	return plan
}

// decideFamily expects versions in descending order, as returned by
// Inventory.Versions.
func decideFamily(family, name string, versions []revision.Identifier, refs revision.ReferenceSet, p Policy) revision.Decision {
	d := revision.Decision{
		Family:  family,
		Name:    name,
		Rule:    p.RuleFor(name),
		Keep:    []revision.Identifier{},
		Delete:  []revision.Identifier{},
		Reasons: make(map[string]revision.Reason),
	}

	keep := func(id revision.Identifier, reason revision.Reason) {
		d.Keep = append(d.Keep, id)
		d.Reasons[id.ARN] = reason
	}

	numeric := make([]revision.Identifier, 0, len(versions))
	for _, v := range versions {
		switch {
		case v.IsLatest():
			keep(v, revision.ReasonLatest)
		case !v.Numeric:
			keep(v, revision.ReasonNonNumeric)
		default:
			numeric = append(numeric, v)
		}
	}

	if d.Rule != revision.RuleNewest && refs.Uncertain(family) {
		for _, v := range numeric {
			keep(v, revision.ReasonUncertain)
		}
		return d
	}

	switch d.Rule {
	case revision.RuleNewest:
		for i, v := range numeric {
			if i < p.KeepCount {
				keep(v, revision.ReasonRetained)
				continue
			}
			d.Delete = append(d.Delete, v)
		}

	case revision.RuleVersions:
		slots := 0
		for _, v := range numeric {
			switch {
			case refs.Has(v):
				keep(v, revision.ReasonReferenced)
			case slots < p.KeepCount:
				keep(v, revision.ReasonRetained)
				slots++
			default:
				d.Delete = append(d.Delete, v)
			}
		}

	default:
		for i, v := range numeric {
			switch {
			case refs.Has(v):
				keep(v, revision.ReasonReferenced)
			case i < p.KeepRecent:
				keep(v, revision.ReasonRetained)
			default:
				d.Delete = append(d.Delete, v)
			}
		}
	}

	return d
}
