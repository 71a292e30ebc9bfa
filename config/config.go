// Package config defines the CLI's flag set and the Settings it populates,
// grounded on config.py's pydantic Settings model: the same flag names,
// defaults, and descriptions, parsed with the standard library's flag
// package the way cmd/scalibr-advanced's parseFlags builds its Config.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Output format names accepted by --output-format.
const (
	FormatJSON      = "json"
	FormatDot       = "dot"
	FormatHTML      = "html"
	FormatCycloneDX = "cyclonedx"
)

// Settings holds every CLI-tunable knob, mirroring config.py's Settings
// field-for-field (minus --force, which this port always behaves as if
// set, since prompting the user or silently refusing to overwrite a file
// chosen with --output-file has no good non-interactive default and the
// original's own default is to refuse only when not forced).
type Settings struct {
	// Target is the directory or "source:package[@spec]" package specifier
	// to analyze.
	Target string
	// AllVersions, when set, makes --output-format html emit every package
	// version satisfying a dependency rather than collapsing them.
	AllVersions bool
	// Audit enables querying OSV for known vulnerabilities after resolving.
	Audit bool
	// Database is the SQLite path to read/write, or ":memory:".
	Database string
	// DepthLimit bounds how many dependency hops are resolved; negative
	// means unbounded.
	DepthLimit int
	// ClearCache deletes Database before resolving.
	ClearCache bool
	// Compare is an optional second target to diff the resolution against.
	Compare string
	// List prints the available resolvers and their availability instead
	// of resolving anything.
	List bool
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
	// MaxWorkers bounds concurrent resolve/update tasks.
	MaxWorkers int
	// Normalize scales --compare's distance metric into [0,1].
	Normalize bool
	// OutputFile is where output is written; empty means stdout.
	OutputFile string
	// OutputFormat is one of the Format* constants.
	OutputFormat string
}

func defaultDatabasePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "dependencies.sqlite"
	}
	return filepath.Join(dir, "it-depends", "dependencies.sqlite")
}

// Parse builds a Settings from args (typically os.Args[1:]), applying the
// same defaults config.py's Settings class does: depth_limit -1
// (unbounded), max_workers the logical CPU count, database under the
// platform cache directory, output_format json.
func Parse(args []string) (*Settings, error) {
	fs := flag.NewFlagSet("it-depends", flag.ContinueOnError)
	s := &Settings{}

	fs.BoolVar(&s.AllVersions, "all-versions", false, "For --output-format html, emit every package version that satisfies each dependency")
	fs.BoolVar(&s.Audit, "audit", false, "Audit packages for known vulnerabilities using Google OSV")
	fs.StringVar(&s.Database, "database", defaultDatabasePath(), "Alternative path to load/store the database, or ':memory:' to cache results in memory only")
	fs.IntVar(&s.DepthLimit, "depth-limit", -1, "Depth limit for recursively resolving dependencies; -1 means unbounded")
	fs.BoolVar(&s.ClearCache, "clear-cache", false, "Clears the database specified by --database")
	fs.StringVar(&s.Compare, "compare", "", "Compare path or package name to another target and print a similarity metric instead of resolving output")
	fs.BoolVar(&s.List, "list", false, "List available package resolvers")
	fs.StringVar(&s.LogLevel, "log-level", "info", "Log level: debug, info, warn, or error")
	fs.IntVar(&s.MaxWorkers, "max-workers", runtime.NumCPU(), "Maximum number of resolve jobs to run concurrently")
	fs.BoolVar(&s.Normalize, "normalize", false, "Used with --compare: scale the distance metric into [0,1] instead of [0,infinity)")
	fs.StringVar(&s.OutputFile, "output-file", "", "Output file; if not provided, output is written to stdout")
	fs.StringVar(&s.OutputFormat, "output-format", FormatJSON, "Output format: json, dot, html, or cyclonedx")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch len(fs.Args()) {
	case 0:
		s.Target = "."
	case 1:
		s.Target = fs.Args()[0]
	default:
		return nil, fmt.Errorf("config: unexpected extra arguments: %v", fs.Args()[1:])
	}

	switch s.OutputFormat {
	case FormatJSON, FormatDot, FormatHTML, FormatCycloneDX:
	default:
		return nil, fmt.Errorf("config: unknown --output-format %q", s.OutputFormat)
	}

	return s, nil
}
