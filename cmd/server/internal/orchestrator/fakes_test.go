package orchestrator

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/status"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/whisper"
)

// fakeAudio emulates ffmpeg and demucs on small text files: conversions
// copy, the segmenter writes one chunk per segment of durationSeconds and
// demucs writes per-chunk stems tagged with the chunk name.
type fakeAudio struct {
	mu              sync.Mutex
	durationSeconds int
	pcm             []byte
	decodeErr       error
	demucsErr       error

	// when set, DecodePCM signals decodeEntered and blocks on decodeGate
	decodeGate    chan struct{}
	decodeEntered chan struct{}

	demucsRuns  int
	decodeCalls int
	cuts        []cutCall
	observe     func(step string)
}

type cutCall struct {
	input           string
	start, duration float64
}

func (f *fakeAudio) note(step string) {
	if f.observe != nil {
		f.observe(step)
	}
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0644)
}

func (f *fakeAudio) ConvertToMP3(ctx context.Context, inputPath, outputPath, bitrate string) error {
	f.note("normalize")
	return copyFile(inputPath, outputPath)
}

func (f *fakeAudio) ConvertToWAV(ctx context.Context, inputPath, outputPath string, channels, sampleRate int) error {
	return copyFile(inputPath, outputPath)
}

func (f *fakeAudio) SegmentAudio(ctx context.Context, inputPath string, segmentSeconds int, pattern string) error {
	n := (f.durationSeconds + segmentSeconds - 1) / segmentSeconds
	for i := 0; i < n; i++ {
		if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte(fmt.Sprintf("chunk%d;", i)), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAudio) ConcatAudio(ctx context.Context, listFile, outputPath string) error {
	data, err := os.ReadFile(listFile)
	if err != nil {
		return err
	}
	var out []byte
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		path := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		b, err := os.ReadFile(strings.ReplaceAll(path, `'\''`, "'"))
		if err != nil {
			return err
		}
		out = append(out, b...)
	}
	return os.WriteFile(outputPath, out, 0644)
}

func (f *fakeAudio) CutRegion(ctx context.Context, inputPath string, start, duration float64, outputPath string) error {
	f.mu.Lock()
	f.cuts = append(f.cuts, cutCall{input: inputPath, start: start, duration: duration})
	f.mu.Unlock()
	return os.WriteFile(outputPath, []byte("clip"), 0644)
}

func (f *fakeAudio) RunDemucs(ctx context.Context, inputPath, outputDir string, opts dependency.DemucsOptions) error {
	f.note("separate")
	f.mu.Lock()
	f.demucsRuns++
	err := f.demucsErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	stemDir := filepath.Join(outputDir, opts.Model, name)
	if err := os.MkdirAll(stemDir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(stemDir, "vocals.mp3"), []byte("v:"+name+";"), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stemDir, "no_vocals.mp3"), []byte("a:"+name+";"), 0644)
}

func (f *fakeAudio) DecodePCM(ctx context.Context, inputPath string, sampleRate int) (io.ReadCloser, error) {
	f.note("peaks")
	f.mu.Lock()
	f.decodeCalls++
	err := f.decodeErr
	gate, entered := f.decodeGate, f.decodeEntered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(f.pcm)), nil
}

func (f *fakeAudio) blockDecode() (gate, entered chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decodeGate, f.decodeEntered = make(chan struct{}), make(chan struct{}, 4)
	return f.decodeGate, f.decodeEntered
}

func (f *fakeAudio) counts() (demucs, decode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.demucsRuns, f.decodeCalls
}

// pcmSamples encodes n float32 LE samples of value v.
func pcmSamples(n int, v float32) []byte {
	b := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

type fakeTranscriber struct {
	mu       sync.Mutex
	segments []whisper.TranscriptionSegment
	err      error
	calls    int
	observe  func()
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, options *whisper.TranscribeOptions) (*whisper.TranscriptionResult, error) {
	if f.observe != nil {
		f.observe()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &whisper.TranscriptionResult{Segments: f.segments}, nil
}

func (f *fakeTranscriber) HealthCheck(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeTranscriber) Name() string { return "fake-whisper" }

func (f *fakeTranscriber) set(segments []whisper.TranscriptionSegment, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments, f.err = segments, err
}

type fakeSummarizer struct {
	mu      sync.Mutex
	doc     artifact.SummaryDocument
	err     error
	gate    chan struct{}
	entered chan struct{}
	calls   int
	got     []artifact.TranscriptSegment
	observe func()
}

func (f *fakeSummarizer) Summarize(ctx context.Context, segments []artifact.TranscriptSegment) (artifact.SummaryDocument, error) {
	if f.observe != nil {
		f.observe()
	}
	f.mu.Lock()
	f.calls++
	f.got = segments
	gate, entered := f.gate, f.entered
	doc, err := f.doc, f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return artifact.SummaryDocument{}, ctx.Err()
		}
	}
	return doc, err
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotation struct {
	mu        sync.Mutex
	abc       string
	err       error
	clipSeen  bool
	clipPath  string
	startSeen float64
	endSeen   float64
}

func (f *fakeNotation) Transcribe(ctx context.Context, clipPath string, start, end float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, statErr := os.Stat(clipPath)
	f.clipSeen = statErr == nil
	f.clipPath, f.startSeen, f.endSeen = clipPath, start, end
	return f.abc, f.err
}

type harness struct {
	o           *Orchestrator
	audio       *fakeAudio
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	notation    *fakeNotation
	records     *lessons.Store
	dataDir     string
}

var defaultSegments = []whisper.TranscriptionSegment{
	{ID: 0, Start: 0, End: 4.5, Text: " Let's start with the A minor shape. "},
	{ID: 1, Start: 65, End: 70, Text: "Now bend the third string."},
	{ID: 2, Start: 70, End: 71, Text: "   "},
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dataDir := t.TempDir()
	records, err := lessons.Open(filepath.Join(dataDir, "lessons.db"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	h := &harness{
		audio:       &fakeAudio{durationSeconds: 720, pcm: pcmSamples(1000, 0.5)},
		transcriber: &fakeTranscriber{segments: defaultSegments},
		summarizer: &fakeSummarizer{doc: artifact.SummaryDocument{
			Summary:   "Worked on the A minor pentatonic.",
			KeyPoints: []artifact.KeyPoint{{Point: "Bend on the third string", Timestamp: "01:05"}},
			Chords:    []string{"Am", "G"},
		}},
		notation: &fakeNotation{abc: "X:1\nK:C\ncde|"},
		records:  records,
		dataDir:  dataDir,
	}

	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	o, err := New(cfg, Deps{
		Records:     records,
		Tool:        h.audio,
		Transcriber: h.transcriber,
		Summarizer:  h.summarizer,
		Notation:    h.notation,
	})
	require.NoError(t, err)
	h.o = o

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return h
}

func (h *harness) submit(t *testing.T) string {
	t.Helper()
	id, err := h.o.Submit(context.Background(), Upload{
		Filename: "take1.m4a",
		Body:     strings.NewReader("raw lesson audio"),
		Tags:     []string{"blues"},
	})
	require.NoError(t, err)
	return id
}

// wait blocks until no work is in flight for id and returns its status.
func (h *harness) wait(t *testing.T, id string) status.Record {
	t.Helper()
	require.Eventually(t, func() bool {
		_, busy := h.o.Busy(id)
		return !busy
	}, 5*time.Second, 5*time.Millisecond)
	rec, err := h.o.Status(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
