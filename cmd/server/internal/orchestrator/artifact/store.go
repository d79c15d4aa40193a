// Package artifact owns the on-disk layout of lesson artifacts and the typed
// records stored in them.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
)

// Name identifies an artifact of a lesson.
type Name string

const (
	Upload             Name = "upload"
	Original           Name = "original"
	Vocals             Name = "vocals"
	Accompaniment      Name = "accompaniment"
	TranscriptText     Name = "transcript_text"
	TranscriptSegments Name = "transcript_segments"
	Summary            Name = "summary"
	PeaksVocals        Name = "peaks_vocals"
	PeaksAccompaniment Name = "peaks_accompaniment"
)

// AllNames lists every artifact in pipeline order.
var AllNames = []Name{
	Upload, Original, Vocals, Accompaniment,
	PeaksVocals, PeaksAccompaniment,
	TranscriptText, TranscriptSegments, Summary,
}

var fileNames = map[Name]string{
	Original:           "original.mp3",
	Vocals:             "vocals.mp3",
	Accompaniment:      "accompaniment.mp3",
	TranscriptText:     "transcript.txt",
	TranscriptSegments: "transcript.json",
	Summary:            "summary.json",
	PeaksVocals:        "peaks_vocals.json",
	PeaksAccompaniment: "peaks_accompaniment.json",
}

const (
	processingWAV = "processing.wav"
	staleFile     = "stale.json"
)

var (
	// ErrNotFound is returned when an artifact file does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrLessonGone is returned when writing into a lesson directory that
	// no longer exists. Writes never recreate a deleted lesson.
	ErrLessonGone = errors.New("lesson directory does not exist")
)

// ValidationError reports a persisted artifact that fails its invariants.
type ValidationError struct {
	Name Name
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("artifact %s is malformed: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PeaksFor returns the peak artifact belonging to a track.
func PeaksFor(track Name) (Name, error) {
	switch track {
	case Vocals:
		return PeaksVocals, nil
	case Accompaniment:
		return PeaksAccompaniment, nil
	default:
		return "", fmt.Errorf("no peak series for %q", track)
	}
}

// Store reads and writes lesson artifacts below <data>/lessons/<id>/.
type Store struct {
	pm *dependency.PathManager

	// guards stale.json read-modify-write
	mu sync.Mutex
}

// NewStore creates a store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{pm: dependency.NewPathManager(dataDir)}
}

// LessonsRoot returns the directory containing all lessons.
func (s *Store) LessonsRoot() string {
	return s.pm.GetLessonsRoot()
}

// LessonDir returns the directory of one lesson.
func (s *Store) LessonDir(id string) string {
	return s.pm.GetLessonDir(id)
}

// EnsureLesson creates the lesson directory.
func (s *Store) EnsureLesson(id string) (string, error) {
	return s.pm.EnsureLessonDir(id)
}

// ProcessingWAVPath is the temporary decoded copy used during a run.
func (s *Store) ProcessingWAVPath(id string) string {
	return s.pm.GetLessonFile(id, processingWAV)
}

// WorkRoot is the parent of scratch directories for a lesson.
func (s *Store) WorkRoot(id string) string {
	return s.pm.GetWorkRoot(id)
}

// Path resolves the file of an artifact. The upload keeps its original
// extension, so its path is only known once it exists.
func (s *Store) Path(id string, name Name) (string, error) {
	if err := s.pm.ValidateLessonID(id); err != nil {
		return "", err
	}
	if name == Upload {
		matches, _ := filepath.Glob(filepath.Join(s.LessonDir(id), "upload*"))
		sort.Strings(matches)
		for _, m := range matches {
			if !strings.HasSuffix(m, ".tmp") {
				return m, nil
			}
		}
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	file, ok := fileNames[name]
	if !ok {
		return "", fmt.Errorf("unknown artifact %q", name)
	}
	return s.pm.GetLessonFile(id, file), nil
}

// Exists reports whether the artifact file is present.
func (s *Store) Exists(id string, name Name) bool {
	p, err := s.Path(id, name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Present lists the artifacts that exist for a lesson.
func (s *Store) Present(id string) []Name {
	var out []Name
	for _, n := range AllNames {
		if s.Exists(id, n) {
			out = append(out, n)
		}
	}
	return out
}

// SaveUpload stores the raw upload as upload<ext> and returns its path and size.
func (s *Store) SaveUpload(id, ext string, r io.Reader) (string, int64, error) {
	if _, err := s.EnsureLesson(id); err != nil {
		return "", 0, err
	}
	ext = strings.ToLower(filepath.Ext("x" + ext))
	path := s.pm.GetLessonFile(id, "upload"+ext)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("create upload: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("write upload: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("rename upload: %w", err)
	}
	return path, n, nil
}

// Replace moves srcPath into place as the artifact's file.
func (s *Store) Replace(id string, name Name, srcPath string) error {
	dst, err := s.Path(id, name)
	if err != nil {
		return err
	}
	if err := os.Rename(srcPath, dst); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// SaveTranscript writes transcript.json and transcript.txt.
func (s *Store) SaveTranscript(id string, t Transcript) error {
	if t.Segments == nil {
		t.Segments = []TranscriptSegment{}
	}
	if err := s.writeJSON(id, TranscriptSegments, t.Segments); err != nil {
		return err
	}
	text := t.Text
	if text == "" {
		text = JoinSegmentText(t.Segments)
	}
	p, err := s.Path(id, TranscriptText)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(p, []byte(text)); err != nil {
		return err
	}
	return s.clearStale(id, TranscriptText, TranscriptSegments)
}

// LoadTranscript reads the transcript. The text falls back to the joined
// segment text when transcript.txt is absent.
func (s *Store) LoadTranscript(id string) (Transcript, error) {
	var t Transcript
	if err := s.readJSON(id, TranscriptSegments, &t.Segments); err != nil {
		return Transcript{}, err
	}
	p, err := s.Path(id, TranscriptText)
	if err != nil {
		return Transcript{}, err
	}
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		t.Text = string(data)
	case os.IsNotExist(err):
		t.Text = JoinSegmentText(t.Segments)
	default:
		return Transcript{}, fmt.Errorf("read transcript text: %w", err)
	}
	return t, nil
}

// SaveSummary validates and writes summary.json.
func (s *Store) SaveSummary(id string, doc SummaryDocument) error {
	if err := doc.Validate(); err != nil {
		return &ValidationError{Name: Summary, Err: err}
	}
	if err := s.writeJSON(id, Summary, doc); err != nil {
		return err
	}
	return s.clearStale(id, Summary)
}

// LoadSummary reads and validates summary.json.
func (s *Store) LoadSummary(id string) (SummaryDocument, error) {
	var doc SummaryDocument
	if err := s.readJSON(id, Summary, &doc); err != nil {
		return SummaryDocument{}, err
	}
	if err := doc.Validate(); err != nil {
		return SummaryDocument{}, &ValidationError{Name: Summary, Err: err}
	}
	return doc, nil
}

// SavePeaks writes the peak series of a track.
func (s *Store) SavePeaks(id string, track Name, series PeakSeries) error {
	name, err := PeaksFor(track)
	if err != nil {
		return err
	}
	if err := series.Validate(); err != nil {
		return &ValidationError{Name: name, Err: err}
	}
	if series.Data == nil {
		series.Data = []float64{}
	}
	if err := s.writeJSON(id, name, series); err != nil {
		return err
	}
	return s.clearStale(id, name)
}

// LoadPeaks reads the peak series of a track.
func (s *Store) LoadPeaks(id string, track Name) (PeakSeries, error) {
	name, err := PeaksFor(track)
	if err != nil {
		return PeakSeries{}, err
	}
	var series PeakSeries
	if err := s.readJSON(id, name, &series); err != nil {
		return PeakSeries{}, err
	}
	if err := series.Validate(); err != nil {
		return PeakSeries{}, &ValidationError{Name: name, Err: err}
	}
	return series, nil
}

// Remove deletes the named artifacts; absent ones are ignored.
func (s *Store) Remove(id string, names ...Name) error {
	var errs []error
	for _, n := range names {
		p, err := s.Path(id, n)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// RemoveTemporary deletes the processing WAV and all scratch directories.
func (s *Store) RemoveTemporary(id string) error {
	if err := s.pm.ValidateLessonID(id); err != nil {
		return err
	}
	var errs []error
	if err := os.Remove(s.ProcessingWAVPath(id)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := os.RemoveAll(s.WorkRoot(id)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RemoveLesson deletes the whole lesson directory.
func (s *Store) RemoveLesson(id string) error {
	if err := s.pm.ValidateLessonID(id); err != nil {
		return err
	}
	return os.RemoveAll(s.LessonDir(id))
}

// MarkStale flags artifacts whose inputs were replaced. A stale artifact
// stays readable until its stage writes it again.
func (s *Store) MarkStale(id string, names ...Name) error {
	if len(names) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.readStale(id)
	if err != nil {
		return err
	}
	for _, n := range names {
		set[n] = true
	}
	return s.writeStale(id, set)
}

// Stale lists the present artifacts currently marked stale, in pipeline
// order.
func (s *Store) Stale(id string) []Name {
	s.mu.Lock()
	set, err := s.readStale(id)
	s.mu.Unlock()
	if err != nil {
		slog.Warn("stale set unreadable", "lesson_id", id, "error", err)
		return nil
	}
	var out []Name
	for _, n := range AllNames {
		if set[n] && s.Exists(id, n) {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) clearStale(id string, names ...Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.readStale(id)
	if err != nil {
		return err
	}
	changed := false
	for _, n := range names {
		if set[n] {
			delete(set, n)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeStale(id, set)
}

func (s *Store) readStale(id string) (map[Name]bool, error) {
	if err := s.pm.ValidateLessonID(id); err != nil {
		return nil, err
	}
	set := map[Name]bool{}
	b, err := os.ReadFile(s.pm.GetLessonFile(id, staleFile))
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stale set: %w", err)
	}
	var names []Name
	if err := json.Unmarshal(b, &names); err != nil {
		return nil, fmt.Errorf("parse stale set: %w", err)
	}
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (s *Store) writeStale(id string, set map[Name]bool) error {
	p := s.pm.GetLessonFile(id, staleFile)
	if len(set) == 0 {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale set: %w", err)
		}
		return nil
	}
	names := make([]Name, 0, len(set))
	for _, n := range AllNames {
		if set[n] {
			names = append(names, n)
		}
	}
	if err := s.ensureLessonExists(id); err != nil {
		return err
	}
	b, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("marshal stale set: %w", err)
	}
	return WriteFileAtomic(p, b)
}

func (s *Store) ensureLessonExists(id string) error {
	info, err := os.Stat(s.LessonDir(id))
	if os.IsNotExist(err) || (err == nil && !info.IsDir()) {
		return fmt.Errorf("%s: %w", id, ErrLessonGone)
	}
	return err
}

func (s *Store) writeJSON(id string, name Name, v any) error {
	p, err := s.Path(id, name)
	if err != nil {
		return err
	}
	if err := s.ensureLessonExists(id); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return WriteFileAtomic(p, b)
}

func (s *Store) readJSON(id string, name Name, v any) error {
	p, err := s.Path(id, name)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &ValidationError{Name: name, Err: err}
	}
	return nil
}

// WriteFileAtomic writes data to a sibling temp file and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create tmp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close tmp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename tmp file: %w", err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		slog.Debug("chmod artifact failed", "path", path, "error", err)
	}
	return nil
}
