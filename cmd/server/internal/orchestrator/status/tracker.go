// Package status persists the pipeline state of each lesson: one
// status.json per lesson directory plus an aggregate status_index.json at
// the lessons root, both replaced atomically on every change.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
)

// State is the lifecycle position of a lesson's processing.
type State string

const (
	Queued     State = "queued"
	Processing State = "processing"
	Completed  State = "completed"
	Failed     State = "failed"
	Unknown    State = "unknown"
)

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Record is the externally visible status of one lesson.
type Record struct {
	Status    State     `json:"status"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	recordFile = "status.json"
	indexFile  = "status_index.json"
)

// Tracker reads and writes status records. It is safe for concurrent use.
type Tracker struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// NewTracker creates a tracker over the lessons root directory.
func NewTracker(lessonsRoot string) *Tracker {
	return &Tracker{root: lessonsRoot, now: time.Now}
}

// Queue marks a freshly uploaded lesson.
func (t *Tracker) Queue(id string) error {
	return t.set(id, Record{Status: Queued, Progress: 0, Message: "Queued"})
}

// Start enters processing at the given progress, which may be lower than
// a previous run's value.
func (t *Tracker) Start(id string, progress float64, msg string) error {
	return t.set(id, Record{Status: Processing, Progress: clamp(progress), Message: msg})
}

// Advance updates progress and message during processing. Progress never
// moves backwards.
func (t *Tracker) Advance(id string, progress float64, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := clamp(progress)
	if cur, ok := t.readRecord(id); ok && cur.Status == Processing && cur.Progress > p {
		p = cur.Progress
	}
	return t.setLocked(id, Record{Status: Processing, Progress: p, Message: msg})
}

// Complete marks the lesson finished.
func (t *Tracker) Complete(id, msg string) error {
	return t.set(id, Record{Status: Completed, Progress: 1, Message: msg})
}

// Fail marks the lesson failed. msg is shown to clients as-is.
func (t *Tracker) Fail(id, msg string) error {
	if msg == "" {
		msg = "unknown error"
	}
	return t.set(id, Record{Status: Failed, Progress: 0, Message: msg})
}

// Get returns the lesson's record from its own file, falling back to the
// aggregate index. found is false when neither has an entry.
func (t *Tracker) Get(id string) (Record, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.readRecord(id); ok {
		return rec, true, nil
	}
	idx, err := t.readIndex()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := idx[id]
	return rec, ok, nil
}

// All returns the aggregate index.
func (t *Tracker) All() (map[string]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readIndex()
}

// Remove deletes the lesson's record and index entry.
func (t *Tracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if err := os.Remove(t.recordPath(id)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	idx, err := t.readIndex()
	if err != nil {
		errs = append(errs, err)
	} else if _, ok := idx[id]; ok {
		delete(idx, id)
		if err := t.writeIndex(idx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) set(id string, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLocked(id, rec)
}

func (t *Tracker) setLocked(id string, rec Record) error {
	rec.UpdatedAt = t.now().UTC()

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.recordPath(id)), 0755); err != nil {
		return fmt.Errorf("create lesson dir: %w", err)
	}
	if err := artifact.WriteFileAtomic(t.recordPath(id), b); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	idx, err := t.readIndex()
	if err != nil {
		slog.Warn("status index unreadable, rebuilding", "error", err)
		idx = map[string]Record{}
	}
	idx[id] = rec
	return t.writeIndex(idx)
}

func (t *Tracker) recordPath(id string) string {
	return filepath.Join(t.root, id, recordFile)
}

func (t *Tracker) readRecord(id string) (Record, bool) {
	b, err := os.ReadFile(t.recordPath(id))
	if err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		slog.Warn("status record unreadable", "lesson_id", id, "error", err)
		return Record{}, false
	}
	return rec, true
}

func (t *Tracker) readIndex() (map[string]Record, error) {
	idx := map[string]Record{}
	b, err := os.ReadFile(filepath.Join(t.root, indexFile))
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status index: %w", err)
	}
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("parse status index: %w", err)
	}
	return idx, nil
}

func (t *Tracker) writeIndex(idx map[string]Record) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status index: %w", err)
	}
	if err := os.MkdirAll(t.root, 0755); err != nil {
		return fmt.Errorf("create lessons root: %w", err)
	}
	if err := artifact.WriteFileAtomic(filepath.Join(t.root, indexFile), b); err != nil {
		return fmt.Errorf("write status index: %w", err)
	}
	return nil
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
