package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/internal/core"
	"github.com/patchgate/patchgate/internal/journal"
	"github.com/patchgate/patchgate/internal/registry"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setUpServer(t *testing.T, withJournal bool) *Server {
	t.Helper()
	root := t.TempDir()
	for _, relPath := range []string{"593/client.exe", "594/client.exe", "594/media/data.pk2"} {
		fullPath := filepath.Join(root, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(relPath), 0644))
	}

	reg, err := registry.Load(testLogger(), root, "")
	require.NoError(t, err)

	server := &Server{Config: &core.Config{}, Logger: testLogger(), Registry: reg}
	if withJournal {
		j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), false)
		require.NoError(t, err)
		t.Cleanup(func() { j.Close() })
		server.Journal = j
	}
	return server
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, path, nil)
	server.routes().ServeHTTP(recorder, request)
	return recorder
}

func TestHealth(t *testing.T) {
	recorder := get(t, setUpServer(t, false), "/healthz")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["versions"])
}

func TestVersions(t *testing.T) {
	recorder := get(t, setUpServer(t, false), "/versions")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var summaries []versionSummary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, 593, summaries[0].Version)
	assert.Equal(t, 32593, summaries[0].Port)
	assert.Equal(t, 594, summaries[1].Version)
	assert.Equal(t, 2, summaries[1].FileCount)
}

func TestManifest(t *testing.T) {
	server := setUpServer(t, false)

	recorder := get(t, server, "/versions/594/manifest")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var entries []manifestEntry
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "client.exe", entries[0].Path)
	assert.Equal(t, "media/data.pk2", entries[1].Path)
	assert.Len(t, entries[0].Checksum, 8)
}

func TestManifestUnknownVersion(t *testing.T) {
	recorder := get(t, setUpServer(t, false), "/versions/100/manifest")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestManifestBadVersion(t *testing.T) {
	recorder := get(t, setUpServer(t, false), "/versions/latest/manifest")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRequestsWithoutJournal(t *testing.T) {
	recorder := get(t, setUpServer(t, false), "/requests")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRequests(t *testing.T) {
	server := setUpServer(t, true)
	require.NoError(t, server.Journal.RecordPatchRequest(&journal.PatchRequestRecord{
		RemoteAddr:      "10.0.0.5",
		ReportedVersion: 593,
		TargetVersion:   594,
		ChangeCount:     2,
	}))

	recorder := get(t, server, "/requests")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var summaries []requestSummary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "10.0.0.5", summaries[0].RemoteAddr)
	assert.Equal(t, 594, summaries[0].TargetVersion)
	assert.False(t, summaries[0].UpToDate)
}

func TestRequestCounts(t *testing.T) {
	server := setUpServer(t, true)
	for i := 0; i < 3; i++ {
		require.NoError(t, server.Journal.RecordPatchRequest(&journal.PatchRequestRecord{
			TargetVersion: 594,
		}))
	}

	recorder := get(t, server, "/requests/counts")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var counts map[string]int64
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &counts))
	assert.Equal(t, int64(3), counts["594"])
}