// Package output renders a resolved cache.PackageCache into the CLI's four
// user-facing formats, grounded on cache.py's to_obj/to_dot,
// it_depends/html.py's graph_to_html, and sbom.py/converter.go's CycloneDX
// construction (already adapted into the sbom package).
package output

import (
	"encoding/json"
	"fmt"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
)

// packageObj is one version entry under a "source:name" key, mirroring
// to_obj's package_to_dict.
type packageObj struct {
	Dependencies     map[string]string `json:"dependencies"`
	Vulnerabilities  []string          `json:"vulnerabilities"`
	Source           string            `json:"source"`
	IsSourcePackage  bool              `json:"is_source_package,omitempty"`
	Maintenance      *maintenanceObj   `json:"maintenance,omitempty"`
}

type maintenanceObj struct {
	RepositoryURL   string `json:"repository_url,omitempty"`
	LastCommitDate  string `json:"last_commit_date,omitempty"`
	IsStale         bool   `json:"is_stale"`
	DaysSinceUpdate int    `json:"days_since_update,omitempty"`
	Error           string `json:"error,omitempty"`
}

func vulnCompactStr(v dependencies.Vulnerability) string {
	if len(v.Aliases) == 0 {
		return fmt.Sprintf("%s ()", v.ID)
	}
	aliases := v.Aliases[0]
	for _, a := range v.Aliases[1:] {
		aliases += ", " + a
	}
	return fmt.Sprintf("%s (%s)", v.ID, aliases)
}

func packageToObj(pkg any) packageObj {
	base := dependencies.PackageOf(pkg)
	deps := make(map[string]string, len(base.Dependencies()))
	for _, d := range base.Dependencies() {
		specStr := "*"
		if d.Spec != nil {
			specStr = d.Spec.String()
		}
		deps[d.FullName()] = specStr
	}
	vulns := make([]string, 0, len(base.Vulnerabilities()))
	for _, v := range base.Vulnerabilities() {
		vulns = append(vulns, vulnCompactStr(v))
	}
	obj := packageObj{
		Dependencies:    deps,
		Vulnerabilities: vulns,
		Source:          base.Source,
	}
	if _, ok := dependencies.IsSourcePackage(pkg); ok {
		obj.IsSourcePackage = true
	}
	if m := base.Maintenance(); m != nil {
		obj.Maintenance = &maintenanceObj{
			RepositoryURL:   m.RepositoryURL,
			LastCommitDate:  m.LastCommitDate,
			IsStale:         m.IsStale,
			DaysSinceUpdate: m.DaysSinceUpdate,
			Error:           m.Error,
		}
	}
	return obj
}

// ToJSON renders c the way to_obj does: a map from "source:name" to a map
// from version string to that version's dependency/vulnerability/source
// details, pretty-printed with a four-space indent matching
// `json.dumps(..., indent=4)`.
func ToJSON(c cache.PackageCache) ([]byte, error) {
	out := map[string]map[string]packageObj{}
	for _, fullName := range c.PackageFullNames() {
		versions := map[string]packageObj{}
		for _, pkg := range c.PackageVersions(fullName) {
			version := dependencies.PackageOf(pkg).Version.String()
			versions[version] = packageToObj(pkg)
		}
		out[fullName] = versions
	}
	return json.MarshalIndent(out, "", "    ")
}
