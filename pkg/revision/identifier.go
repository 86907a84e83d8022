// Package revision defines the versioned-definition model for vacuum:
// identifiers, inventories, references and retention decisions.
package revision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

// LatestMarker is the floating Lambda pseudo-version. It is never numeric
// and never deletable.
const LatestMarker = "$LATEST"

// Identifier names one versioned definition.
// The ARN is the opaque key; Family and Version are parsed from it.
type Identifier struct {
	ARN     string `json:"arn"`     // Full ARN including the version suffix
	Family  string `json:"family"`  // ARN with the version suffix stripped
	Name    string `json:"name"`    // Short family name (task definition family, function name)
	Version string `json:"version"` // Raw version token (e.g. "42", "$LATEST")
	Number  int64  `json:"number"`  // Parsed version, valid when Numeric is true
	Numeric bool   `json:"numeric"`
}

// Parse splits a versioned ARN such as
// arn:aws:ecs:us-west-2:123456789012:task-definition/web:42 or
// arn:aws:lambda:us-west-2:123456789012:function:web:7.
func Parse(raw string) (Identifier, error) {
	parsed, err := arn.Parse(raw)
	if err != nil {
		return Identifier{}, fmt.Errorf("parse arn %q: %w", raw, err)
	}

	idx := strings.LastIndex(parsed.Resource, ":")
	if idx <= 0 || idx == len(parsed.Resource)-1 {
		return Identifier{}, fmt.Errorf("arn %q has no version suffix", raw)
	}

	// "function:web" is an unqualified Lambda ARN, not a version.
	if !strings.ContainsAny(parsed.Resource[:idx], "/:") {
		return Identifier{}, fmt.Errorf("arn %q has no version suffix", raw)
	}

	version := parsed.Resource[idx+1:]
	return New(strings.TrimSuffix(raw, ":"+version), version), nil
}

// New builds an Identifier from an already split family ARN and version.
func New(family, version string) Identifier {
	id := Identifier{
		ARN:     family + ":" + version,
		Family:  family,
		Name:    FamilyName(family),
		Version: version,
	}
	id.Number, id.Numeric = parseVersion(version)
	return id
}

// FamilyName returns the short name of a family ARN: the part after the
// last "/" or ":".
func FamilyName(family string) string {
	return family[strings.LastIndexAny(family, "/:")+1:]
}

// parseVersion accepts only plain decimal digits that fit an int64.
// Anything else, including the latest marker, is non-numeric.
func parseVersion(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsLatest reports whether this is the floating latest marker.
func (id Identifier) IsLatest() bool {
	return id.Version == LatestMarker
}

// String returns the ARN.
func (id Identifier) String() string {
	return id.ARN
}

// less orders numeric versions ascending; non-numeric tokens sort below
// every numeric version, lexically among themselves.
func less(a, b Identifier) bool {
	if a.Numeric != b.Numeric {
		return !a.Numeric
	}
	if a.Numeric {
		return a.Number < b.Number
	}
	return a.Version < b.Version
}
