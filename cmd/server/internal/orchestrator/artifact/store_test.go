package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lessonID = "0190f5a2-6f2e-7c1d-9a55-1b2c3d4e5f60"

func newStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	_, err := s.EnsureLesson(lessonID)
	require.NoError(t, err)
	return s
}

func TestStore_SaveUpload(t *testing.T) {
	s := newStore(t)

	path, n, err := s.SaveUpload(lessonID, ".M4A", strings.NewReader("audio-bytes"))

	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "upload.m4a", filepath.Base(path))

	resolved, err := s.Path(lessonID, Upload)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.True(t, s.Exists(lessonID, Upload))
	assert.Equal(t, []Name{Upload}, s.Present(lessonID))
}

func TestStore_UploadMissing(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Path(lessonID, Upload)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Exists(lessonID, Upload))
}

func TestStore_RejectsUnsafeLessonID(t *testing.T) {
	s := newStore(t)

	_, err := s.Path("../../etc", Original)
	assert.Error(t, err)
	assert.Error(t, s.RemoveLesson("../x"))
}

func TestStore_TranscriptRoundTrip(t *testing.T) {
	s := newStore(t)
	segments := []TranscriptSegment{
		{Start: 0, End: 2.5, Text: " Let's tune first. "},
		{Start: 2.5, End: 6, Text: "Now the G chord."},
	}

	require.NoError(t, s.SaveTranscript(lessonID, Transcript{Segments: segments}))

	got, err := s.LoadTranscript(lessonID)
	require.NoError(t, err)
	assert.Equal(t, segments, got.Segments)
	assert.Equal(t, "Let's tune first.\nNow the G chord.", got.Text)
	assert.True(t, s.Exists(lessonID, TranscriptText))
	assert.True(t, s.Exists(lessonID, TranscriptSegments))
}

func TestStore_TranscriptTextFallback(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveTranscript(lessonID, Transcript{Segments: []TranscriptSegment{{Text: "one"}, {Text: "two"}}}))
	require.NoError(t, s.Remove(lessonID, TranscriptText))

	got, err := s.LoadTranscript(lessonID)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", got.Text)
}

func TestStore_LoadMissingTranscript(t *testing.T) {
	_, err := newStore(t).LoadTranscript(lessonID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SummaryValidation(t *testing.T) {
	s := newStore(t)

	err := s.SaveSummary(lessonID, SummaryDocument{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.False(t, s.Exists(lessonID, Summary))

	doc := SummaryDocument{
		Summary:   "Worked on alternate picking.",
		KeyPoints: []KeyPoint{{Point: "Relax the wrist", Timestamp: "03:15"}},
		Chords:    []string{"Am", "G"},
	}
	require.NoError(t, s.SaveSummary(lessonID, doc))
	got, err := s.LoadSummary(lessonID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestStore_LoadMalformedSummaryFails(t *testing.T) {
	s := newStore(t)
	_, err := s.EnsureLesson(lessonID)
	require.NoError(t, err)
	p, err := s.Path(lessonID, Summary)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte(`{"summary":"x","key_points":[{"point":"p","timestamp":"later"}]}`), 0644))
	_, err = s.LoadSummary(lessonID)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	require.NoError(t, os.WriteFile(p, []byte(`{not json`), 0644))
	_, err = s.LoadSummary(lessonID)
	assert.ErrorAs(t, err, &vErr)
}

func TestStore_Peaks(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SavePeaks(lessonID, Vocals, PeakSeries{Data: []float64{0.1, 0.5}, PointsPerSecond: 100}))

	got, err := s.LoadPeaks(lessonID, Vocals)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.5}, got.Data)
	assert.True(t, s.Exists(lessonID, PeaksVocals))
	assert.False(t, s.Exists(lessonID, PeaksAccompaniment))

	_, err = s.LoadPeaks(lessonID, Accompaniment)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.SavePeaks(lessonID, Original, PeakSeries{PointsPerSecond: 100}))
	assert.Error(t, s.SavePeaks(lessonID, Vocals, PeakSeries{PointsPerSecond: 0}))
}

func TestStore_ReplaceAndRemove(t *testing.T) {
	s := newStore(t)
	dir, err := s.EnsureLesson(lessonID)
	require.NoError(t, err)

	tmp := filepath.Join(dir, "vocals.mp3.new")
	require.NoError(t, os.WriteFile(tmp, []byte("v"), 0644))
	require.NoError(t, s.Replace(lessonID, Vocals, tmp))
	assert.True(t, s.Exists(lessonID, Vocals))

	require.NoError(t, s.Remove(lessonID, Vocals, Summary, Upload))
	assert.False(t, s.Exists(lessonID, Vocals))
}

func TestStore_RemoveTemporary(t *testing.T) {
	s := newStore(t)
	_, err := s.EnsureLesson(lessonID)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.ProcessingWAVPath(lessonID), []byte("wav"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.WorkRoot(lessonID), "separate-1"), 0755))
	require.NoError(t, s.SaveSummary(lessonID, SummaryDocument{Summary: "keep me"}))

	require.NoError(t, s.RemoveTemporary(lessonID))

	_, err = os.Stat(s.ProcessingWAVPath(lessonID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.WorkRoot(lessonID))
	assert.True(t, os.IsNotExist(err))
	assert.True(t, s.Exists(lessonID, Summary))

	require.NoError(t, s.RemoveLesson(lessonID))
	_, err = os.Stat(s.LessonDir(lessonID))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_WritesNeverRecreateDeletedLesson(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.RemoveLesson(lessonID))

	err := s.SavePeaks(lessonID, Vocals, PeakSeries{Data: []float64{0.2}, PointsPerSecond: 100})
	assert.ErrorIs(t, err, ErrLessonGone)
	err = s.SaveSummary(lessonID, SummaryDocument{Summary: "late"})
	assert.ErrorIs(t, err, ErrLessonGone)
	err = s.SaveTranscript(lessonID, Transcript{Segments: []TranscriptSegment{{Text: "late"}}})
	assert.ErrorIs(t, err, ErrLessonGone)
	assert.ErrorIs(t, s.MarkStale(lessonID, Summary), ErrLessonGone)

	_, err = os.Stat(s.LessonDir(lessonID))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_StaleUntilRewritten(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveTranscript(lessonID, Transcript{Segments: []TranscriptSegment{{Text: "old take"}}}))
	require.NoError(t, s.SaveSummary(lessonID, SummaryDocument{Summary: "old summary"}))
	assert.Empty(t, s.Stale(lessonID))

	require.NoError(t, s.MarkStale(lessonID, Summary, TranscriptSegments, TranscriptText, PeaksVocals))
	assert.Equal(t, []Name{TranscriptText, TranscriptSegments, Summary}, s.Stale(lessonID),
		"absent artifacts are not reported")

	doc, err := s.LoadSummary(lessonID)
	require.NoError(t, err)
	assert.Equal(t, "old summary", doc.Summary)

	require.NoError(t, s.SaveTranscript(lessonID, Transcript{Segments: []TranscriptSegment{{Text: "new take"}}}))
	assert.Equal(t, []Name{Summary}, s.Stale(lessonID))

	require.NoError(t, s.SavePeaks(lessonID, Vocals, PeakSeries{Data: []float64{0.3}, PointsPerSecond: 100}))
	assert.Equal(t, []Name{Summary}, s.Stale(lessonID))

	require.NoError(t, s.SaveSummary(lessonID, SummaryDocument{Summary: "new summary"}))
	assert.Empty(t, s.Stale(lessonID))
	_, err = os.Stat(filepath.Join(s.LessonDir(lessonID), "stale.json"))
	assert.True(t, os.IsNotExist(err), "empty stale set leaves no file")
}

func TestWriteFileAtomic_LeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "status.json")

	require.NoError(t, WriteFileAtomic(p, []byte(`{"a":1}`)))
	require.NoError(t, WriteFileAtomic(p, []byte(`{"a":2}`)))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
