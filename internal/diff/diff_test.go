package diff

import (
	"os"
	"testing"

	"github.com/go-test/deep"

	"github.com/patchgate/patchgate/internal/registry"
)

func writeListing(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0644)
}

func manifest(entries ...registry.FileEntry) registry.Manifest {
	m := make(registry.Manifest, len(entries))
	for _, entry := range entries {
		m[entry.Path] = entry
	}
	return m
}

func baseManifest(t *testing.T, paths ...string) *registry.BaseManifest {
	t.Helper()
	// Build through the loader so tests exercise the same path normalization
	// production uses.
	listing := t.TempDir() + "/base.manifest"
	contents := ""
	for _, path := range paths {
		contents += path + "\n"
	}
	if err := writeListing(listing, contents); err != nil {
		t.Fatalf("error writing base listing: %v", err)
	}
	base, err := registry.LoadBaseManifest(listing)
	if err != nil {
		t.Fatalf("error loading base listing: %v", err)
	}
	return base
}

func TestDiffIdenticalManifestsIsEmpty(t *testing.T) {
	m := manifest(
		registry.FileEntry{Path: "media.pk2", Size: 10, Checksum: 0xAB},
		registry.FileEntry{Path: "music/login.ogg", Size: 20, Checksum: 0xCD},
	)

	if changes := Diff(m, m, nil); len(changes) != 0 {
		t.Errorf("Diff(M, M) should be empty, got %v", changes)
	}
}

func TestDiffAddReplaceRemove(t *testing.T) {
	source := manifest(
		registry.FileEntry{Path: "media.pk2", Size: 10, Checksum: 0xAB},
		registry.FileEntry{Path: "music/new_login.ogg", Size: 30, Checksum: 0xEF},
	)
	target := manifest(
		registry.FileEntry{Path: "media.pk2", Size: 12, Checksum: 0xAC},
		registry.FileEntry{Path: "data.pk2", Size: 50, Checksum: 0x99},
	)

	changes := Diff(source, target, nil)

	expected := []ChangeEntry{
		{Path: "data.pk2", Action: Add, Size: 50, Checksum: 0x99},
		{Path: "media.pk2", Action: Replace, Size: 12, Checksum: 0xAC},
		{Path: "music/new_login.ogg", Action: Remove},
	}
	if diff := deep.Equal(expected, changes); diff != nil {
		t.Errorf("Diff() mismatch: %v", diff)
	}
}

func TestDiffIdenticalFilesNeverEmitted(t *testing.T) {
	shared := registry.FileEntry{Path: "media.pk2", Size: 10, Checksum: 0xAB}
	source := manifest(shared)
	target := manifest(shared, registry.FileEntry{Path: "data.pk2", Size: 5, Checksum: 0x01})

	for _, change := range Diff(source, target, nil) {
		if change.Path == "media.pk2" {
			t.Errorf("file identical in both manifests appeared in change list: %v", change)
		}
	}
}

func TestDiffBaseManifestSuppressesRemovals(t *testing.T) {
	// Client state includes a base file the target manifest doesn't carry
	// (patch directories only hold changed files). Without the base manifest
	// it would be flagged for removal; with it, it must survive.
	source := manifest(
		registry.FileEntry{Path: "media.pk2", Size: 10, Checksum: 0xAB},
		registry.FileEntry{Path: "music/new_login.ogg", Size: 30, Checksum: 0xEF},
	)
	target := manifest(
		registry.FileEntry{Path: "data.pk2", Size: 50, Checksum: 0x99},
	)
	base := baseManifest(t, "media.pk2")

	changes := Diff(source, target, base)

	expected := []ChangeEntry{
		{Path: "data.pk2", Action: Add, Size: 50, Checksum: 0x99},
		{Path: "music/new_login.ogg", Action: Remove},
	}
	if diff := deep.Equal(expected, changes); diff != nil {
		t.Errorf("Diff() mismatch: %v", diff)
	}
}

func TestDiffIsDeterministic(t *testing.T) {
	source := manifest(
		registry.FileEntry{Path: "c.pk2", Size: 1, Checksum: 1},
		registry.FileEntry{Path: "a.pk2", Size: 2, Checksum: 2},
		registry.FileEntry{Path: "b.pk2", Size: 3, Checksum: 3},
	)
	target := manifest(
		registry.FileEntry{Path: "d.pk2", Size: 4, Checksum: 4},
		registry.FileEntry{Path: "a.pk2", Size: 9, Checksum: 9},
	)

	first := Diff(source, target, nil)
	for i := 0; i < 10; i++ {
		if diff := deep.Equal(first, Diff(source, target, nil)); diff != nil {
			t.Fatalf("Diff() output varied between runs: %v", diff)
		}
	}

	for i := 1; i < len(first); i++ {
		if first[i-1].Path >= first[i].Path {
			t.Errorf("change list not sorted by path: %q before %q", first[i-1].Path, first[i].Path)
		}
	}
}

func TestDiffEmptySourceIsAllAdds(t *testing.T) {
	target := manifest(
		registry.FileEntry{Path: "media.pk2", Size: 10, Checksum: 0xAB},
		registry.FileEntry{Path: "data.pk2", Size: 50, Checksum: 0x99},
	)

	changes := Diff(nil, target, nil)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	for _, change := range changes {
		if change.Action != Add {
			t.Errorf("change for %s should be an add, got %s", change.Path, change.Action)
		}
	}
}
