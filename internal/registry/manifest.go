package registry

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileEntry describes one patchable file exactly as the static file server
// will expose it. Checksum is a CRC32 (IEEE) of the file contents.
type FileEntry struct {
	Path     string
	Size     uint32
	Checksum uint32
}

// Manifest is the complete set of files known for one version, keyed by
// relative slash-separated path. Manifests are built once at registry load
// time and never modified afterwards.
type Manifest map[string]FileEntry

// Paths returns every path in the manifest in lexicographic order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// BaseManifest is the full authoritative file set of the lowest supported
// version. It exists to disambiguate removals during downgrade: a path the
// base requires must never be deleted off a client.
type BaseManifest struct {
	required map[string]struct{}
}

// Requires reports whether path is part of the base file set.
func (b *BaseManifest) Requires(path string) bool {
	if b == nil {
		return false
	}
	_, ok := b.required[path]
	return ok
}

// Len returns the number of required paths.
func (b *BaseManifest) Len() int {
	if b == nil {
		return 0
	}
	return len(b.required)
}

// LoadBaseManifest reads a base manifest listing file: one relative path per
// line, blank lines and lines starting with # ignored. Backslashes are
// normalized so listings exported on Windows work unchanged.
func LoadBaseManifest(path string) (*BaseManifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening base manifest: %w", err)
	}
	defer file.Close()

	base := &BaseManifest{required: make(map[string]struct{})}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		base.required[strings.ReplaceAll(line, "\\", "/")] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading base manifest: %w", err)
	}

	return base, nil
}
