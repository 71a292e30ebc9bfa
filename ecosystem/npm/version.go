// Package npm resolves JavaScript package dependencies against the npm
// registry's JSON API.
package npm

import (
	"strconv"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
)

// Spec is an npm-style version range: an OR of one or more AND-groups of
// comparator clauses (each group a dependencies.SimpleSpec), e.g.
// "^1.2.3 || >=2.0.0 <3.0.0". npm.py imports a dedicated NpmSpec class from
// the semantic_version package rather than reusing its generic SimpleSpec,
// for exactly this reason: npm ranges support "||" alternation and
// caret/tilde/x-range shorthand that SimpleSpec's plain comparator-list
// grammar has no way to express, so this module mirrors that with its own
// type the same way it does for ecosystem/gomod.
type Spec struct {
	groups []dependencies.SimpleSpec
}

// String renders the spec as its OR-separated, comma-joined AND-groups.
func (s Spec) String() string {
	if len(s.groups) == 0 {
		return "*"
	}
	parts := make([]string, len(s.groups))
	for i, g := range s.groups {
		parts[i] = g.String()
	}
	return strings.Join(parts, " || ")
}

// Matches implements dependencies.VersionSpec: true if any AND-group matches.
func (s Spec) Matches(v dependencies.Version) bool {
	for _, g := range s.groups {
		if g.Matches(v) {
			return true
		}
	}
	return false
}

// Union implements dependencies.VersionSpec by distributing AND over the
// two specs' OR-groups: the result matches v iff some pair of groups (one
// from each side) both match v, which is exactly the intersection of the
// two specs' match sets when each is itself an OR of ANDs.
func (s Spec) Union(other dependencies.VersionSpec) dependencies.VersionSpec {
	o, ok := other.(Spec)
	if !ok {
		if _, isWildcard := other.(dependencies.WildcardSpec); isWildcard {
			return s
		}
		return dependencies.WildcardSpec{}
	}
	if len(s.groups) == 0 {
		return o
	}
	if len(o.groups) == 0 {
		return s
	}
	var combined []dependencies.SimpleSpec
	for _, a := range s.groups {
		for _, b := range o.groups {
			merged, ok := a.Union(b).(dependencies.SimpleSpec)
			if ok {
				combined = append(combined, merged)
			}
		}
	}
	return Spec{groups: combined}
}

// ParseSpec parses an npm version range. Supported forms: "||" alternation,
// space-separated comparator conjunction, caret ("^1.2.3"), tilde
// ("~1.2.3"), x-ranges ("1.2.x", "1.x"), hyphen ranges ("1.2.3 - 2.3.4"),
// and bare/partial versions ("1.2.3", "1.2", "1"). Anything this parser
// doesn't recognize falls back to the wildcard, matching
// NPMResolver.parse_spec's own last-resort "return SimpleSpec('*')".
func ParseSpec(expr string) (dependencies.VersionSpec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" || expr == "latest" {
		return Spec{groups: []dependencies.SimpleSpec{{}}}, nil
	}
	var groups []dependencies.SimpleSpec
	for _, alt := range strings.Split(expr, "||") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		group, err := parseGroup(alt)
		if err != nil {
			return Spec{groups: []dependencies.SimpleSpec{{}}}, nil //nolint:nilerr
		}
		groups = append(groups, group)
	}
	if len(groups) == 0 {
		groups = []dependencies.SimpleSpec{{}}
	}
	return Spec{groups: groups}, nil
}

func init() {
	dependencies.RegisterSpecParser("npm", ParseSpec)
}

func parseGroup(expr string) (dependencies.SimpleSpec, error) {
	if lower, upper, ok := hyphenRange(expr); ok {
		return dependencies.ParseSimpleSpec(">=" + lower + ",<=" + upper)
	}
	fields := strings.Fields(expr)
	var clauses []string
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "^"):
			lower, upper, err := caretRange(f[1:])
			if err != nil {
				return dependencies.SimpleSpec{}, err
			}
			clauses = append(clauses, ">="+lower, "<"+upper)
		case strings.HasPrefix(f, "~"):
			lower, upper, err := tildeRange(f[1:])
			if err != nil {
				return dependencies.SimpleSpec{}, err
			}
			clauses = append(clauses, ">="+lower, "<"+upper)
		case isXRange(f):
			lower, upper, err := xRange(f)
			if err != nil {
				return dependencies.SimpleSpec{}, err
			}
			if upper == "" {
				clauses = append(clauses, ">="+lower)
			} else {
				clauses = append(clauses, ">="+lower, "<"+upper)
			}
		default:
			clauses = append(clauses, f)
		}
	}
	return dependencies.ParseSimpleSpec(strings.Join(clauses, ","))
}

func hyphenRange(expr string) (lower, upper string, ok bool) {
	parts := strings.SplitN(expr, " - ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

func isXRange(f string) bool {
	return f == "x" || f == "X" || f == "*" ||
		strings.HasSuffix(f, ".x") || strings.HasSuffix(f, ".X") || strings.HasSuffix(f, ".*") ||
		(!strings.ContainsAny(f, "<>=^~") && len(strings.Split(f, ".")) < 3)
}

// xRange expands a bare or partial version ("1", "1.2", "1.2.x") to its
// implied [lower, upper) range, matching node-semver's X-Range semantics:
// missing/"x" trailing components widen the match to the whole next level
// up, rather than pinning to zero.
func xRange(f string) (lower, upper string, err error) {
	f = strings.TrimSuffix(strings.TrimSuffix(f, ".x"), ".X")
	f = strings.TrimSuffix(f, ".*")
	if f == "" || f == "*" {
		return "0.0.0", "", nil
	}
	parts := strings.Split(f, ".")
	nums := make([]int, 0, 3)
	for _, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil {
			return "", "", convErr
		}
		nums = append(nums, n)
	}
	for len(nums) < 3 {
		nums = append(nums, 0)
	}
	lower = joinInts(nums)
	if len(parts) >= 3 {
		return lower, "", nil // fully specified, treated as an exact lower bound with no upper
	}
	bump := append([]int{}, nums...)
	if len(parts) == 1 {
		bump[0]++
		bump[1], bump[2] = 0, 0
	} else {
		bump[1]++
		bump[2] = 0
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
		p = strings.TrimSuffix(strings.TrimSuffix(p, "x"), "X")
		if p == "" {
			p = "0"
		}
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
