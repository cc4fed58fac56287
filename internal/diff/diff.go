// Package diff computes the minimal set of file changes that move a client
// from one version's manifest to another's. It is purely functional: the
// same inputs always produce the same ordered output, and no version
// ordering is consulted — downgrades fall out of comparing manifest content.
package diff

import (
	"sort"

	"github.com/patchgate/patchgate/internal/registry"
)

// Action is the operation the client must perform for one file.
type Action uint8

const (
	Add Action = iota + 1
	Replace
	Remove
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Replace:
		return "replace"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// ChangeEntry is one diff outcome. Size and Checksum describe the target
// file for adds and replacements and are zero for removals.
type ChangeEntry struct {
	Path     string
	Action   Action
	Size     uint32
	Checksum uint32
}

// Diff returns the ordered change list that transforms source into target.
// Files identical by size and checksum are never emitted. When a base
// manifest is supplied, paths it requires are never removed; a source path
// missing from the target is then only removed if it is version-introduced
// content outside the base file set. Output is sorted by path.
func Diff(source, target registry.Manifest, base *registry.BaseManifest) []ChangeEntry {
	var changes []ChangeEntry

	for path, targetEntry := range target {
		sourceEntry, exists := source[path]
		switch {
		case !exists:
			changes = append(changes, ChangeEntry{
				Path:     path,
				Action:   Add,
				Size:     targetEntry.Size,
				Checksum: targetEntry.Checksum,
			})
		case sourceEntry.Size != targetEntry.Size || sourceEntry.Checksum != targetEntry.Checksum:
			changes = append(changes, ChangeEntry{
				Path:     path,
				Action:   Replace,
				Size:     targetEntry.Size,
				Checksum: targetEntry.Checksum,
			})
		}
	}

	for path := range source {
		if _, exists := target[path]; exists {
			continue
		}
		// The client's reported state may be incomplete or approximate;
		// base-required files are never deleted off a client.
		if base.Requires(path) {
			continue
		}
		changes = append(changes, ChangeEntry{Path: path, Action: Remove})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
