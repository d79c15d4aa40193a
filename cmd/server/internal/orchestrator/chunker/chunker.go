// Package chunker splits long recordings into fixed-length pieces and joins
// per-piece results back together, both without re-encoding, so that heavy
// per-chunk processing runs in bounded memory.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultSegmentSeconds is the chunk length used when the caller passes zero.
const DefaultSegmentSeconds = 600

// Tool is the subset of the audio facade the chunker needs.
type Tool interface {
	SegmentAudio(ctx context.Context, inputPath string, segmentSeconds int, pattern string) error
	ConcatAudio(ctx context.Context, listFile, outputPath string) error
}

// Chunker is stateless apart from the tool it drives.
type Chunker struct {
	tool Tool
}

// New creates a Chunker.
func New(tool Tool) *Chunker {
	return &Chunker{tool: tool}
}

// SplitError reports a failure to split a source recording.
type SplitError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SplitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("split %s: %s: %v", filepath.Base(e.Path), e.Reason, e.Err)
	}
	return fmt.Sprintf("split %s: %s", filepath.Base(e.Path), e.Reason)
}

func (e *SplitError) Unwrap() error { return e.Err }

// MergeError reports a failure to concatenate chunk results.
type MergeError struct {
	Output string
	Reason string
	Err    error
}

func (e *MergeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("merge into %s: %s: %v", filepath.Base(e.Output), e.Reason, e.Err)
	}
	return fmt.Sprintf("merge into %s: %s", filepath.Base(e.Output), e.Reason)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Split cuts audioPath into segmentSeconds-long chunks named
// chunk_NNN<ext> inside outDir and returns their paths in time order.
// The last chunk may be shorter.
func (c *Chunker) Split(ctx context.Context, audioPath, outDir string, segmentSeconds int) ([]string, error) {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, &SplitError{Path: audioPath, Reason: "source not readable", Err: err}
	}
	if info.IsDir() {
		return nil, &SplitError{Path: audioPath, Reason: "source is a directory"}
	}
	if info.Size() == 0 {
		return nil, &SplitError{Path: audioPath, Reason: "source is empty"}
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, &SplitError{Path: audioPath, Reason: "source not readable", Err: err}
	}
	f.Close()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, &SplitError{Path: audioPath, Reason: "cannot create chunk directory", Err: err}
	}

	ext := filepath.Ext(audioPath)
	if ext == "" {
		ext = ".wav"
	}
	pattern := filepath.Join(outDir, "chunk_%03d"+ext)

	if err := c.tool.SegmentAudio(ctx, audioPath, segmentSeconds, pattern); err != nil {
		return nil, &SplitError{Path: audioPath, Reason: "segmenter failed", Err: err}
	}

	chunks, err := listChunks(outDir, ext)
	if err != nil {
		return nil, &SplitError{Path: audioPath, Reason: "cannot list chunks", Err: err}
	}
	if len(chunks) == 0 {
		return nil, &SplitError{Path: audioPath, Reason: "no chunks produced"}
	}

	slog.Debug("audio split", "source", audioPath, "chunks", len(chunks), "segment_seconds", segmentSeconds)
	return chunks, nil
}

// listChunks returns chunk_NNN<ext> files in dir ordered by index.
func listChunks(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		idx  int
		path string
	}
	var found []indexed
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, ext) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), ext))
		if err != nil {
			continue
		}
		found = append(found, indexed{idx: idx, path: filepath.Join(dir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].idx < found[j].idx })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

// Merge concatenates orderedPaths into outputPath. All inputs must share a
// codec and layout, which holds for per-chunk outputs of the same tool.
func (c *Chunker) Merge(ctx context.Context, orderedPaths []string, outputPath string) error {
	if len(orderedPaths) == 0 {
		return &MergeError{Output: outputPath, Reason: "no inputs"}
	}
	for _, p := range orderedPaths {
		if _, err := os.Stat(p); err != nil {
			return &MergeError{Output: outputPath, Reason: "input missing: " + filepath.Base(p), Err: err}
		}
	}

	listFile := outputPath + ".concat.txt"
	if err := os.WriteFile(listFile, []byte(concatList(orderedPaths)), 0644); err != nil {
		return &MergeError{Output: outputPath, Reason: "cannot write concat list", Err: err}
	}
	defer func() {
		if err := os.Remove(listFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("concat list cleanup failed", "path", listFile, "error", err)
		}
	}()

	if err := c.tool.ConcatAudio(ctx, listFile, outputPath); err != nil {
		return &MergeError{Output: outputPath, Reason: "concat failed", Err: err}
	}
	if _, err := os.Stat(outputPath); err != nil {
		return &MergeError{Output: outputPath, Reason: "concat produced no output", Err: err}
	}
	return nil
}

// concatList renders the ffmpeg concat demuxer input. Paths are single
// quoted; an embedded quote becomes '\''.
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// WithWorkDir runs fn inside a fresh directory under parent and removes the
// directory afterwards whether fn succeeds or not. Cleanup failures are
// logged, never returned.
func WithWorkDir(parent, prefix string, fn func(dir string) error) error {
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create work root: %w", err)
	}
	dir, err := os.MkdirTemp(parent, prefix+"-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("work dir cleanup failed", "dir", dir, "error", err)
		}
	}()
	return fn(dir)
}
