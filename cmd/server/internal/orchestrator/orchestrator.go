// Package orchestrator runs the lesson processing pipeline: normalization,
// chunked source separation, waveform peaks, transcription and
// summarization, plus single-stage re-runs and on-demand region notation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/peaks"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/separation"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/status"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/whisper"
)

// AudioTool is the set of ffmpeg/demucs operations the pipeline needs.
// *dependency.DependencyClient implements it.
type AudioTool interface {
	ConvertToMP3(ctx context.Context, inputPath, outputPath, bitrate string) error
	ConvertToWAV(ctx context.Context, inputPath, outputPath string, channels, sampleRate int) error
	SegmentAudio(ctx context.Context, inputPath string, segmentSeconds int, pattern string) error
	ConcatAudio(ctx context.Context, listFile, outputPath string) error
	CutRegion(ctx context.Context, inputPath string, start, duration float64, outputPath string) error
	RunDemucs(ctx context.Context, inputPath, outputDir string, opts dependency.DemucsOptions) error
	DecodePCM(ctx context.Context, inputPath string, sampleRate int) (io.ReadCloser, error)
}

// Summarizer produces a summary document from transcript segments.
type Summarizer interface {
	Summarize(ctx context.Context, segments []artifact.TranscriptSegment) (artifact.SummaryDocument, error)
}

// RegionNotation turns a short clip into ABC notation.
type RegionNotation interface {
	Transcribe(ctx context.Context, clipPath string, start, end float64) (string, error)
}

// LessonRecords is the metadata store kept in sync with the artifacts.
type LessonRecords interface {
	Create(ctx context.Context, l lessons.Lesson) error
	Exists(ctx context.Context, id string) (bool, error)
	SetTranscript(ctx context.Context, id, text string) error
	SetSummary(ctx context.Context, id, summary string, chords []string) error
	Delete(ctx context.Context, id string) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Records     LessonRecords
	Tool        AudioTool
	Transcriber whisper.WhisperTranscriber
	Summarizer  Summarizer
	Notation    RegionNotation
	// Separator overrides the Demucs separator built from Tool.
	Separator separation.Separator
}

// Orchestrator owns background pipeline runs. It is safe for concurrent use.
type Orchestrator struct {
	cfg         Config
	store       *artifact.Store
	tracker     *status.Tracker
	records     LessonRecords
	tool        AudioTool
	separator   *separation.Chunked
	extractor   *peaks.Extractor
	transcriber whisper.WhisperTranscriber
	summarizer  Summarizer
	notation    RegionNotation
	slot        *semaphore.Weighted
	peakGroup   singleflight.Group
	logger      *slog.Logger
	newID       func() (string, error)

	mu       sync.Mutex
	busy     map[string]string
	shared   map[string]int
	closing  bool
	inflight sync.WaitGroup
}

// New creates an orchestrator over cfg.DataDir.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	if deps.Records == nil || deps.Tool == nil || deps.Transcriber == nil || deps.Summarizer == nil || deps.Notation == nil {
		return nil, errors.New("orchestrator: records, tool, transcriber, summarizer and notation are required")
	}

	slot := semaphore.NewWeighted(cfg.ToolSlots)
	sep := deps.Separator
	if sep == nil {
		sep = separation.NewDemucs(deps.Tool, cfg.Demucs)
	}

	return &Orchestrator{
		cfg:         cfg,
		store:       artifact.NewStore(cfg.DataDir),
		tracker:     status.NewTracker(filepath.Join(cfg.DataDir, "lessons")),
		records:     deps.Records,
		tool:        deps.Tool,
		separator:   separation.NewChunked(sep, chunker.New(deps.Tool), slot, cfg.SegmentSeconds),
		extractor:   peaks.NewExtractor(deps.Tool, cfg.PeakSampleRate, cfg.PointsPerSecond),
		transcriber: deps.Transcriber,
		summarizer:  deps.Summarizer,
		notation:    deps.Notation,
		slot:        slot,
		logger:      slog.Default().With("component", "orchestrator"),
		newID:       newLessonID,
		busy:        map[string]string{},
		shared:      map[string]int{},
	}, nil
}

func newLessonID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Store exposes the artifact store for read-only handlers.
func (o *Orchestrator) Store() *artifact.Store {
	return o.store
}

// Config returns the resolved configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Upload is a new recording handed to Submit.
type Upload struct {
	Filename  string
	Body      io.Reader
	Title     string
	Tags      []string
	Memo      string
	CreatedAt time.Time
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !extPattern.MatchString(ext) {
		return ".bin"
	}
	return ext
}

// Submit stores the upload, records the lesson as queued and starts the
// pipeline in the background. It returns as soon as the upload is stored.
func (o *Orchestrator) Submit(ctx context.Context, up Upload) (string, error) {
	if up.Body == nil {
		return "", ErrEmptyUpload
	}
	id, err := o.newID()
	if err != nil {
		return "", fmt.Errorf("generate lesson id: %w", err)
	}
	if !o.acquire(id, "pipeline") {
		if o.isClosing() {
			return "", ErrShuttingDown
		}
		return "", ErrLessonBusy
	}
	dispatched := false
	defer func() {
		if !dispatched {
			o.release(id)
		}
	}()

	_, size, err := o.store.SaveUpload(id, uploadExt(up.Filename), up.Body)
	if err != nil {
		_ = o.store.RemoveLesson(id)
		return "", fmt.Errorf("store upload: %w", err)
	}
	if size == 0 {
		_ = o.store.RemoveLesson(id)
		return "", ErrEmptyUpload
	}

	title := strings.TrimSpace(up.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(up.Filename), filepath.Ext(up.Filename))
	}
	if title == "" || title == "." {
		title = "Untitled lesson"
	}
	if err := o.records.Create(ctx, lessons.Lesson{
		ID:        id,
		Title:     title,
		CreatedAt: up.CreatedAt,
		Tags:      up.Tags,
		Memo:      up.Memo,
	}); err != nil {
		_ = o.store.RemoveLesson(id)
		return "", fmt.Errorf("create lesson record: %w", err)
	}
	if err := o.tracker.Queue(id); err != nil {
		o.logger.Warn("queue status write failed", "lesson_id", id, "error", err)
	}

	o.logger.Info("lesson submitted", "lesson_id", id, "title", title, "bytes", size)
	dispatched = true
	o.goBackground(id, func(ctx context.Context) { o.runPipeline(ctx, id) })
	return id, nil
}

// goBackground runs fn detached from any request context. The caller must
// hold the busy slot for id; it is released when fn returns.
func (o *Orchestrator) goBackground(id string, fn func(ctx context.Context)) {
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer o.release(id)
		fn(context.Background())
	}()
}

// acquire marks id busy with activity; false if it already is, a shared
// hold is active or the orchestrator is shutting down.
func (o *Orchestrator) acquire(id, activity string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing {
		return false
	}
	if _, ok := o.busy[id]; ok {
		return false
	}
	if o.shared[id] > 0 {
		return false
	}
	o.busy[id] = activity
	return true
}

// holdShared takes a non-exclusive hold on id. Shared holds exclude the
// busy slot but not each other. Shutdown waits for them.
func (o *Orchestrator) holdShared(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing {
		return ErrShuttingDown
	}
	if _, ok := o.busy[id]; ok {
		return ErrLessonBusy
	}
	o.shared[id]++
	o.inflight.Add(1)
	return nil
}

func (o *Orchestrator) releaseShared(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shared[id]--; o.shared[id] <= 0 {
		delete(o.shared, id)
	}
	o.inflight.Done()
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.busy, id)
}

func (o *Orchestrator) isClosing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closing
}

// Busy reports the in-flight activity of a lesson, if any.
func (o *Orchestrator) Busy(id string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if activity, ok := o.busy[id]; ok {
		return activity, true
	}
	if o.shared[id] > 0 {
		return string(StagePeaks), true
	}
	return "", false
}

// Shutdown stops accepting work and waits for running pipelines until ctx
// is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	running := len(o.busy) + len(o.shared)
	o.mu.Unlock()

	if running > 0 {
		o.logger.Info("waiting for in-flight pipelines", "count", running)
	}

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
