package resolver

import (
	"context"
	"testing"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/repository"
)

type stubResolver struct{ name string }

func (s stubResolver) Name() string        { return s.name }
func (s stubResolver) Description() string { return "stub resolver for tests" }
func (s stubResolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	return nil, nil
}
func (s stubResolver) CanResolveFromSource(repo repository.SourceRepository) bool { return false }
func (s stubResolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache PackageMatcher) (dependencies.SourcePackage, bool, error) {
	return dependencies.SourcePackage{}, false, nil
}
func (s stubResolver) CanUpdateDependencies(pkg dependencies.Package) bool { return false }
func (s stubResolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	return pkg, nil
}
func (s stubResolver) IsAvailable() ResolverAvailability { return Available() }
func (s stubResolver) DockerSetup() *DockerSetup         { return nil }

func TestRegisterAndByName(t *testing.T) {
	Register(stubResolver{name: "resolvertest-a"})
	r, ok := ByName("resolvertest-a")
	if !ok {
		t.Fatalf("expected the registered resolver to be found")
	}
	if r.Name() != "resolvertest-a" {
		t.Fatalf("unexpected resolver: %+v", r)
	}
}

func TestIsKnown(t *testing.T) {
	Register(stubResolver{name: "resolvertest-b"})
	if !IsKnown("resolvertest-b") {
		t.Fatalf("expected resolvertest-b to be known after registering")
	}
	if IsKnown("resolvertest-does-not-exist") {
		t.Fatalf("expected an unregistered name not to be known")
	}
}

func TestMustByNamePanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustByName to panic for an unregistered resolver")
		}
	}()
	MustByName("resolvertest-does-not-exist")
}

func TestAllSortsUbuntuLast(t *testing.T) {
	Register(stubResolver{name: "ubuntu"})
	Register(stubResolver{name: "zzz-resolvertest"})
	Register(stubResolver{name: "aaa-resolvertest"})

	all := All()
	lastName := all[len(all)-1].Name()
	if lastName != "ubuntu" {
		t.Fatalf("expected ubuntu to sort last, got %q", lastName)
	}
}

func TestAvailableAndUnavailable(t *testing.T) {
	a := Available()
	if !a.Available {
		t.Fatalf("expected Available() to report available")
	}
	u := Unavailable("no network")
	if u.Available || u.Reason != "no network" {
		t.Fatalf("unexpected Unavailable(): %+v", u)
	}
}
