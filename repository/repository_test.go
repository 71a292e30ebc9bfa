package repository

import "testing"

func TestFromFilesystemWrapsPathWithoutIO(t *testing.T) {
	r := FromFilesystem("/does/not/exist")
	if r.Path != "/does/not/exist" {
		t.Fatalf("expected FromFilesystem to store the path verbatim, got %q", r.Path)
	}
	if r.String() != "/does/not/exist" {
		t.Fatalf("expected String() to return the path, got %q", r.String())
	}
}

func TestCleanupClonesIsSafeWithNothingTracked(t *testing.T) {
	CleanupClones()
}
