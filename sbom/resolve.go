package sbom

import (
	"sort"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/resolver"
)

// allCompleteResolutions performs the depth-first backtracking search
// described by resolve_sbom: starting from root already committed, it
// explores ways of satisfying root's transitive dependencies out of
// matcher's already-resolved packages and returns the first valid, complete
// PackageSet found, mirroring _cli.py's own use of resolve_sbom, which takes
// only the first yielded resolution per root (`break` right after the first
// `bom`) rather than enumerating every alternative — a known limitation the
// original flags with "# TODO: Provide a means for enumerating all valid
// SBOMs" rather than an oversight to fix here. A node with several
// outstanding dependency groups branches on every one of them, not just the
// first, so the same complete resolution can be reached along different
// paths; the history set (keyed on the committed PackageSet) prevents
// revisiting one.
func allCompleteResolutions(root dependencies.Package, matcher resolver.PackageMatcher, orderAscending bool) []*partialResolution {
	rootPR := rootPartialResolution(root)
	if len(root.Dependencies()) == 0 {
		return []*partialResolution{rootPR}
	}

	history := map[string]bool{rootPR.historyKey(): true}
	stack := []*partialResolution{rootPR}

	for len(stack) > 0 {
		pr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if pr.isComplete() {
			return []*partialResolution{pr}
		}
		if !pr.isValid() {
			continue
		}

		for _, group := range pr.packages.unsatisfiedDependencies() {
			// Re-adding the requiring packages on their own, without yet
			// picking a candidate, must still be a valid PackageSet; if it
			// isn't, no candidate for this group can rescue the branch.
			if !newPartialResolution(group.requiredBy, nil, pr).isValid() {
				continue
			}
			matches := matchCandidates(matcher, group.dep)
			sort.Slice(matches, func(i, j int) bool {
				cmp := matches[i].Version.Compare(matches[j].Version)
				if orderAscending {
					return cmp < 0
				}
				return cmp > 0
			})
			// stack is LIFO, so push in reverse: the first-sorted candidate
			// must land on top to be the one popped (and thus explored) next.
			for i := len(matches) - 1; i >= 0; i-- {
				next := pr.add(group.requiredBy, matches[i])
				if !next.isValid() {
					continue
				}
				key := next.historyKey()
				if history[key] {
					continue
				}
				history[key] = true
				stack = append(stack, next)
			}
		}
	}
	return nil
}

func matchCandidates(matcher resolver.PackageMatcher, dep dependencies.Dependency) []dependencies.Package {
	matches := matcher.Match(dep)
	out := make([]dependencies.Package, 0, len(matches))
	for _, m := range matches {
		out = append(out, dependencies.PackageOf(m))
	}
	return out
}

// Resolve finds the first valid, complete SBOM reachable from root out of
// matcher's already-resolved packages, matching _cli.py's own handling of
// resolve_sbom: it takes the first resolution yielded for a root and stops,
// rather than enumerating and unioning every alternative. orderAscending
// controls which version of an ambiguous dependency is explored first within
// each branch, which in turn decides which single resolution is returned
// when more than one would satisfy root.
func Resolve(root dependencies.Package, matcher resolver.PackageMatcher, orderAscending bool) *SBOM {
	resolutions := allCompleteResolutions(root, matcher, orderAscending)
	if len(resolutions) == 0 {
		return &SBOM{rootPackages: []dependencies.Package{root}}
	}
	return &SBOM{
		dependencies: resolutions[0].edges(),
		rootPackages: []dependencies.Package{root},
	}
}
