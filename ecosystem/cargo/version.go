// Package cargo resolves Rust crate dependencies by parsing Cargo.toml/
// Cargo.lock and querying the crates.io registry.
package cargo

import (
	"strconv"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
)

// Spec is a Cargo version requirement: a comma-separated conjunction of
// comparator clauses exactly like dependencies.SimpleSpec, except a bare
// version with no operator means a caret requirement (">=version, <next
// breaking change"), not exact equality. cargo.py registers its own
// CargoSpec subclass of SimpleSpec purely to change this one default and to
// tolerate whitespace around commas; this type mirrors that narrow
// difference rather than cargo.py's SimpleSpec-subclassing approach, since
// Go has no equivalent of overriding one parse rule on a borrowed class.
type Spec struct {
	underlying dependencies.SimpleSpec
}

// String renders the expanded comparator form (SimpleSpec's own
// canonicalization), not the original caret/tilde/wildcard shorthand.
func (s Spec) String() string { return s.underlying.String() }

// Matches implements dependencies.VersionSpec.
func (s Spec) Matches(v dependencies.Version) bool { return s.underlying.Matches(v) }

// Union implements dependencies.VersionSpec, matching SimpleSpec.Union's
// narrow-on-repeat semantics (Cargo's own "|" dependency-merge behavior,
// per cargo.py's CargoResolver.get_dependencies union branch).
func (s Spec) Union(other dependencies.VersionSpec) dependencies.VersionSpec {
	o, ok := other.(Spec)
	if !ok {
		if _, isWildcard := other.(dependencies.WildcardSpec); isWildcard {
			return s
		}
		merged, _ := s.underlying.Union(other).(dependencies.SimpleSpec)
		return Spec{underlying: merged}
	}
	merged, _ := s.underlying.Union(o.underlying).(dependencies.SimpleSpec)
	return Spec{underlying: merged}
}

// ParseSpec parses a Cargo version requirement string.
func ParseSpec(expr string) (dependencies.VersionSpec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return Spec{}, nil
	}
	var clauses []string
	for _, block := range strings.Split(expr, ",") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		expanded, err := expandBlock(block)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, expanded...)
	}
	underlying, err := dependencies.ParseSimpleSpec(strings.Join(clauses, ","))
	if err != nil {
		return nil, err
	}
	return Spec{underlying: underlying}, nil
}

func init() {
	dependencies.RegisterSpecParser("cargo", ParseSpec)
}

func expandBlock(block string) ([]string, error) {
	switch {
	case strings.HasPrefix(block, "="):
		if !strings.HasPrefix(block, "==") {
			return []string{"==" + block[1:]}, nil
		}
		return []string{block}, nil
	case strings.HasPrefix(block, "^"):
		lower, upper, err := caretRange(block[1:])
		if err != nil {
			return nil, err
		}
		return []string{">=" + lower, "<" + upper}, nil
	case strings.HasPrefix(block, "~"):
		lower, upper, err := tildeRange(block[1:])
		if err != nil {
			return nil, err
		}
		return []string{">=" + lower, "<" + upper}, nil
	case strings.ContainsAny(block, "*"):
		lower, upper, err := wildcardRange(block)
		if err != nil {
			return nil, err
		}
		if upper == "" {
			return []string{">=" + lower}, nil
		}
		return []string{">=" + lower, "<" + upper}, nil
	case block[0] >= '0' && block[0] <= '9':
		// Cargo's default (caret) requirement for a bare version.
		lower, upper, err := caretRange(block)
		if err != nil {
			return nil, err
		}
		return []string{">=" + lower, "<" + upper}, nil
	default:
		return []string{block}, nil
	}
}

func wildcardRange(block string) (lower, upper string, err error) {
	nums := make([]int, 0, 3)
	parts := strings.Split(block, ".")
	for _, p := range parts {
		if p == "*" {
			break
		}
		n, convErr := strconv.Atoi(p)
		if convErr != nil {
			return "", "", convErr
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return "0.0.0", "", nil
	}
	given := len(nums)
	for len(nums) < 3 {
		nums = append(nums, 0)
	}
	lower = joinInts(nums[:3])
	bump := append([]int{}, nums[:3]...)
	if given >= 2 {
		bump[1]++
		bump[2] = 0
	} else {
		bump[0]++
		bump[1], bump[2] = 0, 0
	}
	return lower, joinInts(bump), nil
}

func caretRange(version string) (lower, upper string, err error) {
	nums, err := parseNums(version)
	if err != nil {
		return "", "", err
	}
	lower = joinInts(nums)
	bump := append([]int{}, nums...)
	switch {
	case nums[0] > 0:
		bump[0]++
		bump[1], bump[2] = 0, 0
	case nums[1] > 0:
		bump[1]++
		bump[2] = 0
	default:
		bump[2]++
	}
	return lower, joinInts(bump), nil
}

func tildeRange(version string) (lower, upper string, err error) {
	parts := strings.Split(version, ".")
	nums, err := parseNums(version)
	if err != nil {
		return "", "", err
	}
	lower = joinInts(nums)
	bump := append([]int{}, nums...)
	if len(parts) <= 1 {
		bump[0]++
		bump[1], bump[2] = 0, 0
	} else {
		bump[1]++
		bump[2] = 0
	}
	return lower, joinInts(bump), nil
}

func parseNums(version string) ([]int, error) {
	parts := strings.Split(version, ".")
	nums := make([]int, 0, 3)
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	for len(nums) < 3 {
		nums = append(nums, 0)
	}
	return nums, nil
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
