package revision

import "errors"

// ErrNotFound is wrapped by provider adapters when a version is already
// gone. Deleting it again counts as success.
var ErrNotFound = errors.New("revision not found")

// Rule names the retention rule applied to a family.
type Rule string

const (
	// RuleUnused deletes every unreferenced version.
	RuleUnused Rule = "unused"
	// RuleNewest keeps the newest versions and ignores references.
	RuleNewest Rule = "newest"
	// RuleVersions protects referenced versions, then keeps the newest.
	RuleVersions Rule = "versions"
)

// Reason explains why a version was kept.
type Reason string

const (
	ReasonReferenced Reason = "referenced"
	ReasonRetained   Reason = "retained"
	ReasonLatest     Reason = "latest"
	ReasonNonNumeric Reason = "non_numeric"
	ReasonUncertain  Reason = "unresolved_consumer"
)

// Decision is the retention outcome for one family.
// Keep and Delete are disjoint and together hold every inventoried version.
type Decision struct {
	Family  string            `json:"family"`
	Name    string            `json:"name"`
	Rule    Rule              `json:"rule"`
	Keep    []Identifier      `json:"keep"`
	Delete  []Identifier      `json:"delete"`
	Reasons map[string]Reason `json:"reasons"` // kept ARN → reason
}

// KeepReason returns why the identifier was kept.
func (d Decision) KeepReason(id Identifier) (Reason, bool) {
	r, ok := d.Reasons[id.ARN]
	return r, ok
}

// Plan is the full set of decisions for one run, in family order.
type Plan struct {
	Decisions []Decision `json:"decisions"`
}

// Deletions flattens every family's delete list.
func (p Plan) Deletions() []Identifier {
	var out []Identifier
	for _, d := range p.Decisions {
		out = append(out, d.Delete...)
	}
	return out
}

// Counts returns the number of kept and deleted versions.
func (p Plan) Counts() (keep, del int) {
	for _, d := range p.Decisions {
		keep += len(d.Keep)
		del += len(d.Delete)
	}
	return keep, del
}

// Decision returns the decision for a family.
func (p Plan) Decision(family string) (Decision, bool) {
	for _, d := range p.Decisions {
		if d.Family == family {
			return d, true
		}
	}
	return Decision{}, false
}
