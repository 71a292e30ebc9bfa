package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	id INTEGER PRIMARY KEY,
	source TEXT NOT NULL,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	is_source_package INTEGER NOT NULL DEFAULT 0,
	source_repo TEXT,
	UNIQUE(source, name, version)
);
CREATE TABLE IF NOT EXISTS dependencies (
	id INTEGER PRIMARY KEY,
	from_package_id INTEGER NOT NULL REFERENCES packages(id),
	source TEXT NOT NULL,
	package TEXT NOT NULL,
	spec TEXT,
	alias TEXT,
	UNIQUE(from_package_id, source, package, spec)
);
CREATE TABLE IF NOT EXISTS resolutions (
	id INTEGER PRIMARY KEY,
	package TEXT NOT NULL,
	version TEXT,
	source TEXT,
	UNIQUE(package, version, source)
);
CREATE TABLE IF NOT EXISTS updated (
	id INTEGER PRIMARY KEY,
	package TEXT NOT NULL,
	version TEXT,
	source TEXT,
	resolver TEXT,
	UNIQUE(package, version, source, resolver)
);
`

// SQLCache is a PackageCache backed by a SQLite database, for resolution
// runs whose results should survive the process exiting (the CLI's
// --database flag). Its schema mirrors db.py's four tables (packages,
// dependencies, resolutions, updated) exactly; unlike db.py's
// DBPackageCache.extend, which raises when a re-added package would lose
// dependencies, Add here always takes the monotonic union, matching
// InMemoryPackageCache and the rest of this module's invariant that
// resolution only ever adds information.
type SQLCache struct {
	dsn string

	mu   sync.Mutex
	refs int
	db   *sql.DB
}

var _ PackageCache = (*SQLCache)(nil)

// NewSQLCache returns a SQLCache for the given path. "" and ":memory:" both
// mean an ephemeral in-process database; any other path is opened (and its
// parent directories created) on Open.
func NewSQLCache(path string) *SQLCache {
	if path == "" {
		path = ":memory:"
	}
	return &SQLCache{dsn: path}
}

// Open creates the backing file (and parent directories) if needed, opens
// the database connection, and ensures the schema exists. Open/Close are
// reference-counted: several logical contexts (multiple resolution runs
// sharing one --database flag) may each call Open and Close around their own
// work, and the physical connection is opened on the first Open and closed
// only once the last matching Close comes in.
func (c *SQLCache) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs > 0 {
		c.refs++
		return nil
	}
	dsn := c.dsn
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("cache: creating %s: %w", dir, err)
			}
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("cache: opening %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite's driver serializes writers anyway; avoid lock contention
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("cache: creating schema: %w", err)
	}
	c.db = db
	c.refs = 1
	return nil
}

// Close drops one reference taken by Open, closing the database connection
// once the last one is released. Calling Close more times than Open was
// called is a no-op.
func (c *SQLCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return nil
	}
	c.refs--
	if c.refs > 0 {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *SQLCache) packageRowToAny(source, name, version string, isSourcePkg bool, sourceRepo sql.NullString, id int64) (any, error) {
	v, err := dependencies.ParseVersion(version)
	if err != nil {
		return nil, err
	}
	deps, err := c.dependenciesFor(id)
	if err != nil {
		return nil, err
	}
	pkg := dependencies.NewPackage(source, name, v, deps...)
	if isSourcePkg && sourceRepo.Valid {
		return dependencies.NewSourcePackage(pkg, filesystemRepo(sourceRepo.String)), nil
	}
	return pkg, nil
}

// filesystemRepo is a bare-string SourceRepository, used to round-trip a
// SourcePackage's repo path through the database without importing the
// repository package (which would make dependencies<->cache<->repository a
// cycle through this persistence layer).
type filesystemRepo string

func (f filesystemRepo) String() string { return string(f) }

func (c *SQLCache) dependenciesFor(packageID int64) ([]dependencies.Dependency, error) {
	rows, err := c.db.Query(`SELECT source, package, spec, alias FROM dependencies WHERE from_package_id = ?`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dependencies.Dependency
	for rows.Next() {
		var source, pkg string
		var specStr, alias sql.NullString
		if err := rows.Scan(&source, &pkg, &specStr, &alias); err != nil {
			return nil, err
		}
		spec := dependencies.VersionSpec(dependencies.WildcardSpec{})
		if specStr.Valid && specStr.String != "" {
			parsed, err := dependencies.ParseSpecFor(source, specStr.String)
			if err == nil {
				spec = parsed
			}
		}
		d := dependencies.NewDependency(source, pkg, spec)
		if alias.Valid {
			d.Alias = alias.String
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *SQLCache) packageIDAndRepo(source, name, version string) (id int64, isSourcePkg bool, repo sql.NullString, found bool, err error) {
	row := c.db.QueryRow(`SELECT id, is_source_package, source_repo FROM packages WHERE source = ? AND name = ? AND version = ?`, source, name, version)
	var isSrc int
	err = row.Scan(&id, &isSrc, &repo)
	if err == sql.ErrNoRows {
		return 0, false, sql.NullString{}, false, nil
	}
	if err != nil {
		return 0, false, sql.NullString{}, false, err
	}
	return id, isSrc != 0, repo, true, nil
}

// Len reports the number of packages in the database.
func (c *SQLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	_ = c.db.QueryRow(`SELECT COUNT(*) FROM packages`).Scan(&n)
	return n
}

// Packages returns every package stored in the database.
func (c *SQLCache) Packages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query(`SELECT id, source, name, version, is_source_package, source_repo FROM packages`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var id int64
		var source, name, version string
		var isSrc int
		var repo sql.NullString
		if err := rows.Scan(&id, &source, &name, &version, &isSrc, &repo); err != nil {
			continue
		}
		pkg, err := c.packageRowToAny(source, name, version, isSrc != 0, repo, id)
		if err != nil {
			continue
		}
		out = append(out, pkg)
	}
	return out
}

// Contains reports whether pkg's identity is already present.
func (c *SQLCache) Contains(pkg any) bool {
	base := dependencies.PackageOf(pkg)
	_, found := c.Get(base.Source, base.Name, base.Version)
	return found
}

// Get looks up the exact (source, name, version) identity.
func (c *SQLCache) Get(source, name string, version dependencies.Version) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, isSrc, repo, found, err := c.packageIDAndRepo(source, name, version.String())
	if err != nil || !found {
		return nil, false
	}
	pkg, err := c.packageRowToAny(source, name, version.String(), isSrc, repo, id)
	if err != nil {
		return nil, false
	}
	return pkg, true
}

// LatestMatch returns the highest-versioned package matching dep.
func (c *SQLCache) LatestMatch(dep dependencies.Dependency) (any, bool) {
	matches := c.Match(dep)
	if len(matches) == 0 {
		return nil, false
	}
	latest := matches[0]
	for _, pkg := range matches[1:] {
		if dependencies.PackageOf(pkg).Version.Compare(dependencies.PackageOf(latest).Version) > 0 {
			latest = pkg
		}
	}
	return latest, true
}

// Match yields every stored package whose (source, name) matches dep and
// whose version satisfies dep.Spec.
func (c *SQLCache) Match(dep dependencies.Dependency) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query(`SELECT id, version, is_source_package, source_repo FROM packages WHERE source = ? AND name = ?`, dep.Source, dep.Package)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var id int64
		var version string
		var isSrc int
		var repo sql.NullString
		if err := rows.Scan(&id, &version, &isSrc, &repo); err != nil {
			continue
		}
		v, err := dependencies.ParseVersion(version)
		if err != nil {
			continue
		}
		if dep.Spec != nil && !dep.Spec.Matches(v) {
			continue
		}
		pkg, err := c.packageRowToAny(dep.Source, dep.Package, version, isSrc != 0, repo, id)
		if err != nil {
			continue
		}
		out = append(out, pkg)
	}
	return out
}

// PackageFullNames returns every distinct "source:name" present, sorted.
func (c *SQLCache) PackageFullNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query(`SELECT DISTINCT source, name FROM packages`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var source, name string
		if err := rows.Scan(&source, &name); err != nil {
			continue
		}
		out = append(out, source+":"+name)
	}
	sort.Strings(out)
	return out
}

// PackageVersions returns every known version of the given "source:name".
func (c *SQLCache) PackageVersions(packageFullName string) []any {
	source, name, ok := strings.Cut(packageFullName, ":")
	if !ok {
		return nil
	}
	return c.Match(dependencies.NewDependency(source, name, dependencies.WildcardSpec{}))
}

// Add inserts pkg, taking the monotonic union of its dependency set with any
// package already stored at the same identity.
func (c *SQLCache) Add(pkg any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(pkg)
}

func (c *SQLCache) addLocked(pkg any) {
	base := dependencies.PackageOf(pkg)
	id, _, _, found, err := c.packageIDAndRepo(base.Source, base.Name, base.Version.String())
	if err != nil {
		return
	}
	var sourceRepo sql.NullString
	isSourcePkg := 0
	if sp, ok := dependencies.IsSourcePackage(pkg); ok {
		isSourcePkg = 1
		sourceRepo = sql.NullString{String: sp.SourceRepo.String(), Valid: true}
	}
	if !found {
		res, err := c.db.Exec(`INSERT INTO packages(source, name, version, is_source_package, source_repo) VALUES (?, ?, ?, ?, ?)`,
			base.Source, base.Name, base.Version.String(), isSourcePkg, sourceRepo)
		if err != nil {
			return
		}
		id, _ = res.LastInsertId()
	} else if isSourcePkg == 1 {
		_, _ = c.db.Exec(`UPDATE packages SET is_source_package = 1, source_repo = ? WHERE id = ?`, sourceRepo, id)
	}
	for _, dep := range base.Dependencies() {
		_, _ = c.db.Exec(
			`INSERT OR IGNORE INTO dependencies(from_package_id, source, package, spec, alias) VALUES (?, ?, ?, ?, ?)`,
			id, dep.Source, dep.Package, dep.Spec.String(), nullIfEmpty(dep.Alias),
		)
	}
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Extend adds every package in pkgs within a single lock acquisition.
func (c *SQLCache) Extend(pkgs []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pkg := range pkgs {
		c.addLocked(pkg)
	}
}

// WasResolved reports whether SetResolved has previously been recorded for
// an equivalent dependency.
func (c *SQLCache) WasResolved(dep dependencies.Dependency) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	_ = c.db.QueryRow(`SELECT COUNT(*) FROM resolutions WHERE package = ? AND version = ? AND source = ?`,
		dep.Package, dep.Spec.String(), dep.Source).Scan(&n)
	return n > 0
}

// SetResolved records dep as fully expanded.
func (c *SQLCache) SetResolved(dep dependencies.Dependency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.db.Exec(`INSERT OR IGNORE INTO resolutions(package, version, source) VALUES (?, ?, ?)`,
		dep.Package, dep.Spec.String(), dep.Source)
}

// WasUpdated reports whether resolver has already processed pkg.
func (c *SQLCache) WasUpdated(pkg any, resolver string) bool {
	base := dependencies.PackageOf(pkg)
	if base.Source == resolver {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	_ = c.db.QueryRow(`SELECT COUNT(*) FROM updated WHERE package = ? AND version = ? AND source = ? AND resolver = ?`,
		base.Name, base.Version.String(), base.Source, resolver).Scan(&n)
	return n > 0
}

// SetUpdated records that resolver has processed pkg.
func (c *SQLCache) SetUpdated(pkg any, resolver string) {
	base := dependencies.PackageOf(pkg)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.db.Exec(`INSERT OR IGNORE INTO updated(package, version, source, resolver) VALUES (?, ?, ?, ?)`,
		base.Name, base.Version.String(), base.Source, resolver)
}

// UpdatedBy returns every resolver name recorded against pkg, sorted.
func (c *SQLCache) UpdatedBy(pkg any) []string {
	base := dependencies.PackageOf(pkg)
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query(`SELECT resolver FROM updated WHERE package = ? AND version = ? AND source = ?`,
		base.Name, base.Version.String(), base.Source)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err == nil {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// UnresolvedDependencies lists, deduplicated, every dependency of pkgs (or
// of the whole cache, if pkgs is nil) that hasn't been marked resolved.
func (c *SQLCache) UnresolvedDependencies(pkgs []any) []dependencies.Dependency {
	if pkgs == nil {
		pkgs = c.Packages()
	}
	seen := map[string]struct{}{}
	var out []dependencies.Dependency
	for _, pkg := range pkgs {
		for _, dep := range dependencies.PackageOf(pkg).Dependencies() {
			if c.WasResolved(dep) {
				continue
			}
			key := dep.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, dep)
		}
	}
	return out
}

// SourcePackages returns every SourcePackage currently stored.
func (c *SQLCache) SourcePackages() []dependencies.SourcePackage {
	var out []dependencies.SourcePackage
	for _, pkg := range c.Packages() {
		if sp, ok := dependencies.IsSourcePackage(pkg); ok {
			out = append(out, sp)
		}
	}
	return out
}

// ToGraph renders the cache into a DependencyGraph.
func (c *SQLCache) ToGraph() *graph.DependencyGraph {
	g := graph.New()
	for _, pkg := range c.Packages() {
		g.AddNode(pkg)
		for _, dep := range dependencies.PackageOf(pkg).Dependencies() {
			for _, matched := range c.Match(dep) {
				g.AddEdge(pkg, matched, dep)
			}
		}
	}
	return g
}
