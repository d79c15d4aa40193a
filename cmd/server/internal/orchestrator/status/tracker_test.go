package status

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	root := t.TempDir()
	tr := NewTracker(root)
	tr.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return tr, root
}

func TestTracker_Lifecycle(t *testing.T) {
	tr, _ := newTracker(t)

	require.NoError(t, tr.Queue("l1"))
	rec, found, err := tr.Get("l1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Queued, rec.Status)
	assert.Equal(t, 0.0, rec.Progress)

	require.NoError(t, tr.Start("l1", 0.05, "Normalizing input audio"))
	require.NoError(t, tr.Advance("l1", 0.15, "Separating audio (chunked)"))
	rec, _, _ = tr.Get("l1")
	assert.Equal(t, Processing, rec.Status)
	assert.Equal(t, 0.15, rec.Progress)
	assert.Equal(t, "Separating audio (chunked)", rec.Message)

	require.NoError(t, tr.Complete("l1", "Processing complete"))
	rec, _, _ = tr.Get("l1")
	assert.Equal(t, Completed, rec.Status)
	assert.Equal(t, 1.0, rec.Progress)
	assert.True(t, rec.Status.Terminal())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), rec.UpdatedAt)
}

func TestTracker_AdvanceNeverDecreases(t *testing.T) {
	tr, _ := newTracker(t)

	require.NoError(t, tr.Start("l1", 0.6, "Generating waveform peaks"))
	require.NoError(t, tr.Advance("l1", 0.3, "late update"))

	rec, _, _ := tr.Get("l1")
	assert.Equal(t, 0.6, rec.Progress)
	assert.Equal(t, "late update", rec.Message)
}

func TestTracker_StartResetsProgressForRerun(t *testing.T) {
	tr, _ := newTracker(t)

	require.NoError(t, tr.Complete("l1", "Processing complete"))
	require.NoError(t, tr.Start("l1", 0.1, "Re-running transcribe"))

	rec, _, _ := tr.Get("l1")
	assert.Equal(t, Processing, rec.Status)
	assert.Equal(t, 0.1, rec.Progress)
}

func TestTracker_Fail(t *testing.T) {
	tr, _ := newTracker(t)

	require.NoError(t, tr.Start("l1", 0.9, "Summarizing lesson"))
	require.NoError(t, tr.Fail("l1", "[STAGE_EXECUTION_FAILED] summarize stage failed: boom"))

	rec, _, _ := tr.Get("l1")
	assert.Equal(t, Failed, rec.Status)
	assert.Equal(t, 0.0, rec.Progress)
	assert.Equal(t, "[STAGE_EXECUTION_FAILED] summarize stage failed: boom", rec.Message)

	require.NoError(t, tr.Fail("l2", ""))
	rec, _, _ = tr.Get("l2")
	assert.Equal(t, "unknown error", rec.Message)
}

func TestTracker_FallsBackToIndex(t *testing.T) {
	tr, root := newTracker(t)

	require.NoError(t, tr.Complete("l1", "done"))
	require.NoError(t, os.Remove(filepath.Join(root, "l1", "status.json")))

	rec, found, err := tr.Get("l1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Completed, rec.Status)
}

func TestTracker_GetUnknown(t *testing.T) {
	tr, _ := newTracker(t)

	_, found, err := tr.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTracker_Remove(t *testing.T) {
	tr, _ := newTracker(t)
	require.NoError(t, tr.Queue("l1"))
	require.NoError(t, tr.Queue("l2"))

	require.NoError(t, tr.Remove("l1"))

	_, found, err := tr.Get("l1")
	require.NoError(t, err)
	assert.False(t, found)

	all, err := tr.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "l2")
}

func TestTracker_ConcurrentWritersKeepIndexConsistent(t *testing.T) {
	tr, _ := newTracker(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := filepath.Base(t.Name()) + string(rune('a'+i))
			assert.NoError(t, tr.Queue(id))
		}(i)
	}
	wg.Wait()

	all, err := tr.All()
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
