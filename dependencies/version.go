// Package dependencies holds the core data model shared by every resolver
// and by the resolution engine: versions, version constraints, dependencies,
// packages, and the value types resolvers attach to them (vulnerabilities,
// maintenance info). None of the types here know about any particular
// ecosystem; ecosystems supply their own Version/VersionSpec implementations
// and plug into the resolver registry.
package dependencies

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a totally-ordered value within one ecosystem's version scheme.
// Implementations must make Compare consistent with String's round-trip:
// two versions that print the same must compare equal.
type Version interface {
	String() string
	// Compare returns -1, 0, or 1 as this version is less than, equal to,
	// or greater than other. Comparing versions from different ecosystems
	// is undefined and implementations may panic.
	Compare(other Version) int
}

// VersionSpec is a constraint over Versions. Ecosystems implement their own
// parser/matcher; every implementation must support a wildcard ("*") that
// always matches.
type VersionSpec interface {
	String() string
	Matches(v Version) bool
	// Union combines this spec with other into a spec that only matches
	// versions satisfying both (mirrors the Python original's semantics,
	// where combining two dependency requirements on the same package
	// narrows rather than widens the match set). Implementations that
	// cannot represent the combination fall back to a wildcard.
	Union(other VersionSpec) VersionSpec
}

// coerceRegexp extracts up to three leading dot-separated numeric
// components plus an optional pre-release/build tail, mirroring
// semantic_version.Version.coerce's leniency with version strings that
// aren't strict semver (e.g. "7.4", "2.8.1-5ubuntu2", "1.2.3.4").
var coerceRegexp = regexp.MustCompile(`^[^\d]*(\d+)(?:\.(\d+))?(?:\.(\d+))?(.*)$`)

// SemVersion is the Version implementation shared by every ecosystem that
// doesn't need its own (pip, npm, cargo, ubuntu). It mirrors
// semantic_version.Version.coerce: missing components default to zero, and
// anything after the first three numeric components becomes the
// prerelease/build tail.
type SemVersion struct {
	Major, Minor, Patch int
	Tail                string // raw suffix, e.g. "-5ubuntu2" or "-rc1+build.5"
	raw                 string // original string, used when rendering spec clauses
}

// ParseVersion coerces an arbitrary version string into a SemVersion,
// defaulting missing numeric components to zero rather than failing. It
// only returns an error when the string contains no digit at all.
func ParseVersion(s string) (SemVersion, error) {
	trimmed := strings.TrimSpace(s)
	m := coerceRegexp.FindStringSubmatch(trimmed)
	if m == nil {
		return SemVersion{}, fmt.Errorf("dependencies: cannot parse version %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor := 0
	if m[2] != "" {
		minor, _ = strconv.Atoi(m[2])
	}
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	return SemVersion{Major: major, Minor: minor, Patch: patch, Tail: m[4], raw: trimmed}, nil
}

// MustParseVersion is ParseVersion, panicking on error. Used for literal
// versions embedded in tests and constant package metadata.
func MustParseVersion(s string) SemVersion {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String reports the canonical major.minor.patch[tail] form, not
// necessarily identical to the input string (e.g. "7.4" becomes "7.4.0").
func (v SemVersion) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	return s + v.Tail
}

// Compare orders by (Major, Minor, Patch) and falls back to a lexical
// comparison of Tail, which is good enough to be stable within a run
// without claiming full semver prerelease-ordering semantics.
func (v SemVersion) Compare(other Version) int {
	o, ok := other.(SemVersion)
	if !ok {
		panic(fmt.Sprintf("dependencies: cannot compare SemVersion to %T", other))
	}
	if v.Major != o.Major {
		return cmpInt(v.Major, o.Major)
	}
	if v.Minor != o.Minor {
		return cmpInt(v.Minor, o.Minor)
	}
	if v.Patch != o.Patch {
		return cmpInt(v.Patch, o.Patch)
	}
	return strings.Compare(v.Tail, o.Tail)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
