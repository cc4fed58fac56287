package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Creates a journal for testing. A new database is created on every
// invocation since it is relatively cheap to do so.
func setUpJournal(t *testing.T) *Journal {
	j, err := Open(filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err, "error initializing test journal")
	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})
	return j
}

func TestRecordAndRecentRequests(t *testing.T) {
	j := setUpJournal(t)

	require.NoError(t, j.RecordPatchRequest(&PatchRequestRecord{
		RemoteAddr:      "10.0.0.5",
		ReportedVersion: 595,
		TargetVersion:   594,
		ChangeCount:     3,
	}))
	require.NoError(t, j.RecordPatchRequest(&PatchRequestRecord{
		RemoteAddr:      "10.0.0.6",
		ReportedVersion: 594,
		TargetVersion:   594,
		UpToDate:        true,
	}))

	records, err := j.RecentRequests(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "10.0.0.6", records[0].RemoteAddr)
	assert.True(t, records[0].UpToDate)
	assert.Equal(t, 3, records[1].ChangeCount)
}

func TestRecentRequestsHonorsLimit(t *testing.T) {
	j := setUpJournal(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.RecordPatchRequest(&PatchRequestRecord{TargetVersion: 594}))
	}

	records, err := j.RecentRequests(2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCountByTargetVersion(t *testing.T) {
	j := setUpJournal(t)

	for _, target := range []int{594, 594, 595} {
		require.NoError(t, j.RecordPatchRequest(&PatchRequestRecord{TargetVersion: target}))
	}

	counts, err := j.CountByTargetVersion()
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{594: 2, 595: 1}, counts)
}
