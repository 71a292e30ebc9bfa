// Package gomod resolves Go module dependencies by parsing go.mod files,
// either from a local checkout or fetched from a module's git remote.
package gomod

import (
	"fmt"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
)

// Version is a raw Go module version string ("v1.2.3", or a pseudo-version
// like "v0.0.0-20150119174127-31079b680792"). Unlike SemVersion, it is never
// decomposed: go.mod pins an exact string per dependency, and comparing two
// pseudo-versions numerically would be meaningless since their "version"
// component is always 0.0.0 and the real ordering information lives in the
// commit timestamp embedded in the tail, which this type preserves exactly
// via a lexical compare (valid because Go's pseudo-version timestamps are
// zero-padded and UTC, so lexical order equals chronological order).
type Version string

// String returns the version string as-is, including its "v" prefix.
func (v Version) String() string { return string(v) }

// Compare orders Versions lexically.
func (v Version) Compare(other dependencies.Version) int {
	o, ok := other.(Version)
	if !ok {
		panic(fmt.Sprintf("gomod: cannot compare Version to %T", other))
	}
	return strings.Compare(string(v), string(o))
}

// Spec is an exact-match Go module version constraint: either a specific
// version ("=v1.2.3") or the universal wildcard ("*"). Go modules don't
// support ranges — go.mod always pins one exact version per dependency —
// so, unlike SimpleSpec, Spec never represents a comparator other than
// equality.
type Spec struct {
	target   string
	wildcard bool
}

// ParseSpec parses a Go version spec: "*"/"" for the wildcard, otherwise an
// optional leading "=" followed by the exact version string to match.
func ParseSpec(expr string) (dependencies.VersionSpec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return Spec{wildcard: true}, nil
	}
	return Spec{target: strings.TrimPrefix(expr, "=")}, nil
}

func init() {
	dependencies.RegisterSpecParser("gomod", ParseSpec)
}

// String implements dependencies.VersionSpec.
func (s Spec) String() string {
	if s.wildcard {
		return "*"
	}
	return "=" + s.target
}

// Matches implements dependencies.VersionSpec: an exact string match against
// v's rendering, or always true for the wildcard.
func (s Spec) Matches(v dependencies.Version) bool {
	if s.wildcard {
		return true
	}
	return v.String() == s.target
}

// Union implements dependencies.VersionSpec. Two distinct exact versions
// required of the same module can't both be satisfied at once; Union
// degrades to the wildcard in that case rather than claiming a match set
// neither side actually permits, mirroring this module's general "can't
// represent the intersection -> fall back to wildcard" rule.
func (s Spec) Union(other dependencies.VersionSpec) dependencies.VersionSpec {
	o, ok := other.(Spec)
	if !ok {
		if _, isWildcard := other.(dependencies.WildcardSpec); isWildcard {
			return s
		}
		return dependencies.WildcardSpec{}
	}
	if s.wildcard {
		return o
	}
	if o.wildcard {
		return s
	}
	if s.target == o.target {
		return s
	}
	return dependencies.WildcardSpec{}
}
