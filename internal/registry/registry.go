// Package registry builds the immutable snapshot of patchable versions the
// rest of the gateway works from. The patch root is scanned exactly once at
// startup; nothing here is written to after Load returns.
package registry

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// BasePort plus a version's identifier yields the port its listener binds.
	BasePort = 32000

	// MaxVersionID bounds version identifiers so every derived port stays
	// inside the registered port range.
	MaxVersionID = 999
)

// ErrNoVersions is returned when the patch root yields no usable versions.
var ErrNoVersions = errors.New("no patch versions registered")

// PatchVersion is one operator-provided content version: its identifier, the
// directory it was loaded from, and the manifest of every file within it.
type PatchVersion struct {
	ID       int
	Dir      string
	Manifest Manifest
}

// Port returns the listener port derived from the version identifier.
func (v *PatchVersion) Port() int {
	return BasePort + v.ID
}

// Registry is the read-only snapshot of every registered version plus the
// optional base manifest. It is shared by all sessions and the proxy and
// requires no locking.
type Registry struct {
	versions map[int]*PatchVersion
	base     *BaseManifest
}

// Load scans rootDir for version subdirectories and builds a manifest for
// each. Directories that don't parse as a version identifier, parse out of
// range, or fail to walk are skipped with a diagnostic. Load fails only when
// nothing registers at all.
func Load(logger *logrus.Logger, rootDir, baseManifestPath string) (*Registry, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("error reading patch root %s: %w", rootDir, err)
	}

	registry := &Registry{versions: make(map[int]*PatchVersion)}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id, err := strconv.Atoi(entry.Name())
		if err != nil {
			logger.Warnf("skipping %s: directory name is not a version identifier", entry.Name())
			continue
		}
		if id < 0 || id > MaxVersionID {
			logger.Warnf("skipping version %d: identifier outside [0, %d]", id, MaxVersionID)
			continue
		}
		if _, taken := registry.versions[id]; taken {
			logger.Warnf("skipping version %d: port %d already registered", id, BasePort+id)
			continue
		}

		dir := filepath.Join(rootDir, entry.Name())
		manifest, err := buildManifest(dir)
		if err != nil {
			logger.Warnf("skipping version %d: %v", id, err)
			continue
		}

		registry.versions[id] = &PatchVersion{ID: id, Dir: dir, Manifest: manifest}
		logger.Infof("registered version %d (%d files) on port %d", id, len(manifest), BasePort+id)
	}

	if len(registry.versions) == 0 {
		return nil, ErrNoVersions
	}

	if baseManifestPath != "" {
		registry.base, err = LoadBaseManifest(baseManifestPath)
		if err != nil {
			return nil, err
		}
		logger.Infof("loaded base manifest (%d files)", registry.base.Len())
	}

	return registry, nil
}

// buildManifest walks a version directory computing size and checksum for
// every regular file beneath it. Checksums are hashed concurrently since
// patch archives run into the gigabytes.
func buildManifest(dir string) (Manifest, error) {
	var mu sync.Mutex
	manifest := make(Manifest)

	group := new(errgroup.Group)
	group.SetLimit(runtime.NumCPU())

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		group.Go(func() error {
			size, checksum, err := checksumFile(path)
			if err != nil {
				return err
			}

			clientPath := filepath.ToSlash(relPath)
			mu.Lock()
			manifest[clientPath] = FileEntry{Path: clientPath, Size: size, Checksum: checksum}
			mu.Unlock()
			return nil
		})
		return nil
	})
	if walkErr := group.Wait(); err == nil {
		err = walkErr
	}
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", dir, err)
	}

	return manifest, nil
}

// checksumFile streams the file through a CRC32 so large patch archives
// don't get pulled into memory.
func checksumFile(path string) (uint32, uint32, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	hash := crc32.NewIEEE()
	size, err := io.Copy(hash, file)
	if err != nil {
		return 0, 0, err
	}

	return uint32(size), hash.Sum32(), nil
}

// Lookup returns the version registered under id, or nil if there isn't one.
func (r *Registry) Lookup(id int) *PatchVersion {
	return r.versions[id]
}

// Versions returns every registered version sorted by identifier.
func (r *Registry) Versions() []*PatchVersion {
	versions := make([]*PatchVersion, 0, len(r.versions))
	for _, version := range r.versions {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ID < versions[j].ID })
	return versions
}

// Base returns the base manifest, or nil when none was configured.
func (r *Registry) Base() *BaseManifest {
	return r.base
}

// Routes derives the version-to-listener-address map consulted by the
// redirect proxy. The map is built once and treated as read-only.
func (r *Registry) Routes(hostname string) map[int]string {
	routes := make(map[int]string, len(r.versions))
	for id, version := range r.versions {
		routes[id] = fmt.Sprintf("%s:%d", hostname, version.Port())
	}
	return routes
}
