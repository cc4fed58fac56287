package registry

import (
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeFile(t *testing.T, root string, relPath, contents string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "593/media.pk2", "old media")
	writeFile(t, root, "594/media.pk2", "new media")
	writeFile(t, root, "594/music/login.ogg", "song")
	// Ignored: not a version identifier.
	writeFile(t, root, "backup/media.pk2", "junk")
	// Ignored: out of range.
	writeFile(t, root, "1593/media.pk2", "junk")

	registry, err := Load(testLogger(), root, "")
	require.NoError(t, err)

	versions := registry.Versions()
	require.Len(t, versions, 2)
	assert.Equal(t, 593, versions[0].ID)
	assert.Equal(t, 594, versions[1].ID)
	assert.Equal(t, 32594, versions[1].Port())

	manifest := registry.Lookup(594).Manifest
	require.Len(t, manifest, 2)

	entry, ok := manifest["music/login.ogg"]
	require.True(t, ok, "nested files should use slash-separated relative paths")
	assert.Equal(t, uint32(len("song")), entry.Size)
	assert.Equal(t, crc32.ChecksumIEEE([]byte("song")), entry.Checksum)

	assert.Nil(t, registry.Lookup(600))
	assert.Nil(t, registry.Base())
}

func TestLoadEmptyRootFails(t *testing.T) {
	_, err := Load(testLogger(), t.TempDir(), "")
	assert.ErrorIs(t, err, ErrNoVersions)
}

func TestLoadMissingRootFails(t *testing.T) {
	_, err := Load(testLogger(), filepath.Join(t.TempDir(), "nope"), "")
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "594/media.pk2", "media")
	writeFile(t, root, "595/media.pk2", "media v2")

	registry, err := Load(testLogger(), root, "")
	require.NoError(t, err)

	routes := registry.Routes("127.0.0.1")
	assert.Equal(t, map[int]string{
		594: "127.0.0.1:32594",
		595: "127.0.0.1:32595",
	}, routes)
}

func TestLoadBaseManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "594/media.pk2", "media")

	listing := filepath.Join(root, "base.manifest")
	require.NoError(t, os.WriteFile(listing, []byte(
		"# lowest supported version file set\n"+
			"media.pk2\n"+
			"\n"+
			"music\\login.ogg\n",
	), 0644))

	registry, err := Load(testLogger(), root, listing)
	require.NoError(t, err)

	base := registry.Base()
	require.NotNil(t, base)
	assert.Equal(t, 2, base.Len())
	assert.True(t, base.Requires("media.pk2"))
	assert.True(t, base.Requires("music/login.ogg"), "backslash paths should be normalized")
	assert.False(t, base.Requires("new_file.pk2"))
}

func TestManifestPathsSorted(t *testing.T) {
	manifest := Manifest{
		"b.pk2": {Path: "b.pk2"},
		"a.pk2": {Path: "a.pk2"},
		"c.pk2": {Path: "c.pk2"},
	}
	assert.Equal(t, []string{"a.pk2", "b.pk2", "c.pk2"}, manifest.Paths())
}
