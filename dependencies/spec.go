package dependencies

import (
	"sort"
	"strings"
)

// clauseOp is one comparator in a SimpleSpec.
type clauseOp string

const (
	opEQ clauseOp = "=="
	opNE clauseOp = "!="
	opLT clauseOp = "<"
	opLE clauseOp = "<="
	opGT clauseOp = ">"
	opGE clauseOp = ">="
)

type clause struct {
	op      clauseOp
	version SemVersion
}

func (c clause) matches(v SemVersion) bool {
	cmp := v.Compare(c.version)
	switch c.op {
	case opEQ:
		return cmp == 0
	case opNE:
		return cmp != 0
	case opLT:
		return cmp < 0
	case opLE:
		return cmp <= 0
	case opGT:
		return cmp > 0
	case opGE:
		return cmp >= 0
	default:
		return false
	}
}

func (c clause) String() string {
	if c.version.raw != "" {
		return string(c.op) + c.version.raw
	}
	return string(c.op) + c.version.String()
}

// WildcardSpec is the universal "*" constraint every ecosystem must supply;
// it matches every version.
type WildcardSpec struct{}

// String implements VersionSpec.
func (WildcardSpec) String() string { return "*" }

// Matches implements VersionSpec; a wildcard matches anything.
func (WildcardSpec) Matches(Version) bool { return true }

// Union implements VersionSpec; wildcard union with anything is the other
// spec, since "*" imposes no constraint to narrow by.
func (WildcardSpec) Union(other VersionSpec) VersionSpec {
	if other == nil {
		return WildcardSpec{}
	}
	return other
}

// SimpleSpec is a conjunction of comparator clauses against a SemVersion,
// e.g. ">=1.2,<2.0". It is the VersionSpec used by the pip and ubuntu
// ecosystems, and the npm and cargo spec types build on it. An empty clause
// list behaves like a wildcard.
type SimpleSpec struct {
	clauses []clause
}

// ParseSimpleSpec parses a comma-separated list of comparator clauses.
// Whitespace around each clause is stripped (cargo-style specs allow it). A
// bare version with no operator is treated as "==version". "*" and the
// empty string both parse to a spec that matches everything.
func ParseSimpleSpec(expr string) (SimpleSpec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return SimpleSpec{}, nil
	}
	var clauses []clause
	for _, block := range strings.Split(expr, ",") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		op, rest := splitOp(block)
		v, err := ParseVersion(strings.TrimSpace(rest))
		if err != nil {
			return SimpleSpec{}, err
		}
		clauses = append(clauses, clause{op: op, version: v})
	}
	return SimpleSpec{clauses: clauses}, nil
}

// MustParseSimpleSpec is ParseSimpleSpec, panicking on error.
func MustParseSimpleSpec(expr string) SimpleSpec {
	s, err := ParseSimpleSpec(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func splitOp(block string) (clauseOp, string) {
	for _, op := range []clauseOp{opGE, opLE, opNE, opEQ, opGT, opLT} {
		if strings.HasPrefix(block, string(op)) {
			return op, block[len(op):]
		}
	}
	return opEQ, block
}

// String canonicalizes the spec, sorted for a stable round-trip regardless
// of the order clauses were unioned in.
func (s SimpleSpec) String() string {
	if len(s.clauses) == 0 {
		return "*"
	}
	parts := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		parts[i] = c.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Matches implements VersionSpec: every clause must match (AND semantics).
func (s SimpleSpec) Matches(v Version) bool {
	sv, ok := v.(SemVersion)
	if !ok {
		return false
	}
	for _, c := range s.clauses {
		if !c.matches(sv) {
			return false
		}
	}
	return true
}

// Union combines two SimpleSpecs by requiring both sets of clauses to hold
// (matching the Python original's cargo/pip "|" operator, which narrows a
// dependency when the same package is required more than once rather than
// widening it). Duplicate clauses are not repeated.
func (s SimpleSpec) Union(other VersionSpec) VersionSpec {
	o, ok := other.(SimpleSpec)
	if !ok {
		if _, isWildcard := other.(WildcardSpec); isWildcard {
			return s
		}
		return WildcardSpec{}
	}
	merged := append([]clause{}, s.clauses...)
	for _, c := range o.clauses {
		dup := false
		for _, existing := range merged {
			if existing == c {
				dup = true
				break
			}
		}
		if !dup {
			merged = append(merged, c)
		}
	}
	return SimpleSpec{clauses: merged}
}
