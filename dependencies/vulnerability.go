package dependencies

// Vulnerability is a known CVE/OSV-style advisory attached to a Package.
// Equality and ordering are on ID alone — aliases and summary are
// descriptive, not identifying.
type Vulnerability struct {
	ID      string
	Aliases []string
	Summary string
}

// Equal reports whether two vulnerabilities share an ID.
func (v Vulnerability) Equal(other Vulnerability) bool { return v.ID == other.ID }

// Less orders vulnerabilities by ID, for deterministic output.
func (v Vulnerability) Less(other Vulnerability) bool { return v.ID < other.ID }

// MaintenanceInfo records the upstream-activity enrichment attached to a
// Package by the maintenance enricher. Error is set instead of the other
// fields when the repository couldn't be located or queried.
type MaintenanceInfo struct {
	RepositoryURL  string
	LastCommitDate string // RFC3339, as returned by the VCS host
	IsStale        bool
	DaysSinceUpdate int
	Error          string
}
