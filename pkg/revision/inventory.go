package revision

import (
	"sort"

	"github.com/google/btree"
)

const btreeDegree = 8

// Inventory is an immutable snapshot of every known version, grouped by
// family. Build it once with NewInventory; it is never modified afterwards.
type Inventory struct {
	families map[string]*btree.BTreeG[Identifier]
	names    map[string]string
	size     int
}

// NewInventory groups identifiers by family. Duplicate ARNs collapse.
func NewInventory(ids ...Identifier) Inventory {
	inv := Inventory{
		families: make(map[string]*btree.BTreeG[Identifier]),
		names:    make(map[string]string),
	}

	for _, id := range ids {
		tree, ok := inv.families[id.Family]
		if !ok {
			tree = btree.NewG(btreeDegree, less)
			inv.families[id.Family] = tree
			inv.names[id.Family] = id.Name
		}
		if _, replaced := tree.ReplaceOrInsert(id); !replaced {
			inv.size++
		}
	}

	return inv
}

// Families returns all family keys in sorted order.
func (inv Inventory) Families() []string {
	families := make([]string, 0, len(inv.families))
	for f := range inv.families {
		families = append(families, f)
	}
	sort.Strings(families)
	return families
}

// Name returns the short name of a family.
func (inv Inventory) Name(family string) string {
	return inv.names[family]
}

// Versions returns a family's versions, numeric ones first in descending
// order, followed by non-numeric tokens.
func (inv Inventory) Versions(family string) []Identifier {
	tree, ok := inv.families[family]
	if !ok {
		return nil
	}

	versions := make([]Identifier, 0, tree.Len())
	tree.Descend(func(id Identifier) bool {
		versions = append(versions, id)
		return true
	})
	return versions
}

// Contains reports whether the identifier is part of the inventory.
func (inv Inventory) Contains(id Identifier) bool {
	tree, ok := inv.families[id.Family]
	if !ok {
		return false
	}
	return tree.Has(id)
}

// Len returns the number of distinct versions across all families.
func (inv Inventory) Len() int {
	return inv.size
}

// FamilyCount returns the number of families.
func (inv Inventory) FamilyCount() int {
	return len(inv.families)
}

// Select returns a new inventory holding only families for which keep
// returns true. The receiver is left untouched.
func (inv Inventory) Select(keep func(family, name string) bool) Inventory {
	out := Inventory{
		families: make(map[string]*btree.BTreeG[Identifier]),
		names:    make(map[string]string),
	}
	for family, tree := range inv.families {
		name := inv.names[family]
		if !keep(family, name) {
			continue
		}
		out.families[family] = tree.Clone()
		out.names[family] = name
		out.size += tree.Len()
	}
	return out
}
