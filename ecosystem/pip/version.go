// Package pip resolves Python package dependencies against the PyPI JSON
// API, replacing the original's johnnydep/pip subprocess shellout (which
// needs a working Python interpreter on PATH) with a direct HTTP client —
// the same "talk to the registry's own JSON API" approach ecosystem/npm
// takes for the npm registry.
package pip

import (
	"strconv"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
)

// ParseSpec parses a PEP 440 version specifier set (e.g. "~=1.4.2",
// ">=1.0,<2.0") into a dependencies.SimpleSpec, expanding the two operators
// SimpleSpec doesn't understand natively before delegating:
//   - "~=V.N" (compatible release) expands to ">=V.N,<U" where U increments
//     the next-to-last release segment and drops the last, per PEP 440.
//   - "===V" (arbitrary equality, rare in practice) is treated as "==V";
//     SimpleSpec has no notion of non-version string equality, and every
//     real-world "===" specifier in PyPI metadata names a normal version
//     string anyway.
func ParseSpec(expr string) (dependencies.VersionSpec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return dependencies.SimpleSpec{}, nil
	}
	var clauses []string
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case strings.HasPrefix(part, "~="):
			lower, upper, err := compatibleRelease(strings.TrimSpace(part[2:]))
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, ">="+lower, "<"+upper)
		case strings.HasPrefix(part, "==="):
			clauses = append(clauses, "=="+strings.TrimSpace(part[3:]))
		default:
			clauses = append(clauses, part)
		}
	}
	return dependencies.ParseSimpleSpec(strings.Join(clauses, ","))
}

func init() {
	dependencies.RegisterSpecParser(Name, ParseSpec)
}

// compatibleRelease computes the [lower, upper) bounds PEP 440's "~="
// operator expands to: the given version as the inclusive lower bound, and
// a version with its last release segment dropped and the new last segment
// incremented by one as the exclusive upper bound.
func compatibleRelease(version string) (lower, upper string, err error) {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return version, version, nil
	}
	prefix := append([]string{}, parts[:len(parts)-1]...)
	last, convErr := strconv.Atoi(prefix[len(prefix)-1])
	if convErr != nil {
		return version, version, nil
	}
	prefix[len(prefix)-1] = strconv.Itoa(last + 1)
	return version, strings.Join(prefix, "."), nil
}
