package revision

// ConsumerKind identifies the kind of live consumer holding a reference.
type ConsumerKind string

const (
	KindRunningTask ConsumerKind = "running_task"
	KindService     ConsumerKind = "service"
	KindAlias       ConsumerKind = "alias"
)

// Consumer is a live object whose bound version must be resolved.
type Consumer struct {
	Kind    ConsumerKind `json:"kind"`
	ARN     string       `json:"arn"`
	Cluster string       `json:"cluster,omitempty"` // ECS consumers only
	Family  string       `json:"family,omitempty"`  // Known only for aliases
}

// Reference asserts that deleting Target would break the consumer.
type Reference struct {
	Kind     ConsumerKind `json:"kind"`
	Consumer string       `json:"consumer"`
	Target   Identifier   `json:"target"`
}

// ReferenceSet is an immutable snapshot of every referenced version plus
// the consumers that could not be resolved.
type ReferenceSet struct {
	refs       map[string][]Reference
	unresolved []Consumer
}

// NewReferenceSet builds a snapshot. References to non-numeric versions
// are dropped: those versions are protected unconditionally elsewhere.
func NewReferenceSet(refs []Reference, unresolved []Consumer) ReferenceSet {
	set := ReferenceSet{
		refs:       make(map[string][]Reference),
		unresolved: append([]Consumer(nil), unresolved...),
	}
	for _, r := range refs {
		if !r.Target.Numeric {
			continue
		}
		set.refs[r.Target.ARN] = append(set.refs[r.Target.ARN], r)
	}
	return set
}

// Has reports whether any consumer references the identifier.
func (s ReferenceSet) Has(id Identifier) bool {
	_, ok := s.refs[id.ARN]
	return ok
}

// ReferencedBy returns the references pointing at the identifier.
func (s ReferenceSet) ReferencedBy(id Identifier) []Reference {
	return s.refs[id.ARN]
}

// Len returns the number of distinct referenced versions.
func (s ReferenceSet) Len() int {
	return len(s.refs)
}

// Unresolved returns consumers whose bound version is unknown.
func (s ReferenceSet) Unresolved() []Consumer {
	return append([]Consumer(nil), s.unresolved...)
}

// Uncertain reports whether references for the family may be incomplete:
// either a consumer of this family failed to resolve, or a consumer of
// unknown family did.
func (s ReferenceSet) Uncertain(family string) bool {
	for _, c := range s.unresolved {
		if c.Family == "" || c.Family == family {
			return true
		}
	}
	return false
}
