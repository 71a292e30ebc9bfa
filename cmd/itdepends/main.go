// Command itdepends resolves a project's or package's transitive
// dependencies and reports on them, mirroring _cli.py's main(). Flags are
// defined in config.Settings; resolution itself lives in the resolution
// package; this file is just argument handling, wiring, and output
// dispatch, the same division of labor cmd/scalibr-advanced/main.go keeps
// between parseFlags/runAdvancedScan/outputResults.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/CycloneDX/cyclonedx-go"

	// Blank-imported so every ecosystem resolver registers itself with the
	// resolver package on startup, the same way a CLI wires in every plugin
	// it ships with.
	_ "github.com/trailofbits/it-depends/ecosystem/autotools"
	_ "github.com/trailofbits/it-depends/ecosystem/cargo"
	_ "github.com/trailofbits/it-depends/ecosystem/gomod"
	_ "github.com/trailofbits/it-depends/ecosystem/npm"
	_ "github.com/trailofbits/it-depends/ecosystem/pip"
	_ "github.com/trailofbits/it-depends/ecosystem/ubuntu"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/config"
	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/enrich"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/output"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolution"
	"github.com/trailofbits/it-depends/resolver"
	"github.com/trailofbits/it-depends/sbom"
)

func main() {
	settings, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.SetLogger(&log.DefaultLogger{Verbose: settings.LogLevel == "debug"})

	if err := run(context.Background(), settings); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}

// parseTarget tells an on-disk source tree from a "source:package[@spec]"
// package specifier apart, mirroring parse_path_or_package_name. Unlike the
// original, it doesn't pre-validate that the specifier's source names a
// known resolver — DependencyFromString happily parses any "source:name"
// pair, and an unknown source surfaces naturally once resolution looks it
// up against the registry.
func parseTarget(target string) (any, error) {
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		return repository.FromFilesystem(target), nil
	}
	dep, err := dependencies.DependencyFromString(target)
	if err != nil {
		return nil, fmt.Errorf("%q is neither an existing directory nor a valid package specifier: %w", target, err)
	}
	return dep, nil
}

func run(ctx context.Context, settings *config.Settings) error {
	if settings.ClearCache && settings.Database != ":memory:" {
		if _, err := os.Stat(settings.Database); err == nil {
			if err := os.Remove(settings.Database); err != nil {
				return fmt.Errorf("clearing cache at %s: %w", settings.Database, err)
			}
		}
	}

	target, err := parseTarget(settings.Target)
	if err != nil {
		return err
	}

	if settings.List {
		return listResolvers(os.Stdout, target)
	}

	resolveOpts := resolution.Options{
		Cache:      cache.NewSQLCache(settings.Database),
		DepthLimit: settings.DepthLimit,
		MaxWorkers: settings.MaxWorkers,
	}

	resolved, err := resolution.Resolve(ctx, target, resolveOpts)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", settings.Target, err)
	}

	if resolved.Len() == 0 {
		log.Errorf("no packages found for %s; try --list to check available resolvers", settings.Target)
	}

	if settings.Audit {
		if err := enrich.NewVulnerabilityEnricher().Enrich(ctx, resolved); err != nil {
			log.Warnf("vulnerability audit: %v", err)
		}
		if err := enrich.NewMaintenanceEnricher(os.Getenv("GITHUB_TOKEN")).Enrich(ctx, resolved); err != nil {
			log.Warnf("maintenance check: %v", err)
		}
	}

	out, err := openOutput(settings.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	if settings.Compare != "" {
		return compare(ctx, settings, resolveOpts, resolved, out)
	}
	return render(settings, resolved, out)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func listResolvers(w io.Writer, target any) error {
	fmt.Fprintf(w, "Available resolvers:\n")
	all := resolver.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	for _, r := range all {
		fmt.Fprintf(w, "%-12s", r.Name())
		if avail := r.IsAvailable(); !avail.Available {
			fmt.Fprintf(w, "\tnot available: %s\n", avail.Reason)
			continue
		}
		switch v := target.(type) {
		case repository.SourceRepository:
			if !r.CanResolveFromSource(v) {
				fmt.Fprintf(w, "\tincompatible with this path\n")
				continue
			}
		case dependencies.Dependency:
			if v.Source != r.Name() {
				fmt.Fprintf(w, "\tincompatible with this package specifier\n")
				continue
			}
		}
		fmt.Fprintf(w, "\tenabled\n")
	}
	return nil
}

func compare(ctx context.Context, settings *config.Settings, opts resolution.Options, resolved cache.PackageCache, out io.Writer) error {
	compareTarget, err := parseTarget(settings.Compare)
	if err != nil {
		return err
	}
	compareOpts := opts
	compareOpts.Cache = cache.New()
	compareResolved, err := resolution.Resolve(ctx, compareTarget, compareOpts)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", settings.Compare, err)
	}
	distance, err := resolved.ToGraph().DistanceTo(compareResolved.ToGraph(), settings.Normalize)
	if err != nil {
		return fmt.Errorf("comparing %s to %s: %w", settings.Target, settings.Compare, err)
	}
	fmt.Fprintf(out, "%v", distance)
	return nil
}

func render(settings *config.Settings, resolved cache.PackageCache, out io.Writer) error {
	switch settings.OutputFormat {
	case config.FormatJSON:
		data, err := output.ToJSON(resolved)
		if err != nil {
			return fmt.Errorf("rendering JSON: %w", err)
		}
		_, err = out.Write(data)
		return err
	case config.FormatDot:
		_, err := io.WriteString(out, output.ToDot(resolved))
		return err
	case config.FormatHTML:
		html, err := output.ToHTML(resolved.ToGraph(), !settings.AllVersions)
		if err != nil {
			return fmt.Errorf("rendering HTML: %w", err)
		}
		_, err = io.WriteString(out, html)
		return err
	case config.FormatCycloneDX:
		return renderCycloneDX(settings, resolved, out)
	default:
		return fmt.Errorf("unsupported output format %q", settings.OutputFormat)
	}
}

func renderCycloneDX(settings *config.Settings, resolved cache.PackageCache, out io.Writer) error {
	var bom *sbom.SBOM
	for _, root := range resolved.SourcePackages() {
		candidate := sbom.Resolve(root.Package, resolved, true)
		if bom == nil {
			bom = candidate
		} else {
			bom = bom.Or(candidate)
		}
	}
	if bom == nil {
		return fmt.Errorf("no satisfying dependency resolution found for %s", settings.Target)
	}

	doc := output.ToCycloneDX(bom, "dev")
	encoder := cyclonedx.NewBOMEncoder(out, cyclonedx.BOMFileFormatJSON).SetPretty(true)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encoding CycloneDX document: %w", err)
	}
	return nil
}
