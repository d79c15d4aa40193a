// Package separation splits a recording into a vocal track and an
// accompaniment track with Demucs, one bounded-length chunk at a time.
package separation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/refret/pkg/metrics"
)

// Stems are the files produced for one input.
type Stems struct {
	Vocals        string
	Accompaniment string
}

// Separator separates a single audio file.
type Separator interface {
	Separate(ctx context.Context, inputPath, outDir string) (Stems, error)
}

// DemucsRunner runs the Demucs CLI.
type DemucsRunner interface {
	RunDemucs(ctx context.Context, inputPath, outputDir string, opts dependency.DemucsOptions) error
}

// accompaniment stem names in order of preference; two-stem runs produce
// no_vocals, four/six-stem models leave guitar or other
var accompanimentStems = []string{"no_vocals.mp3", "guitar.mp3", "other.mp3"}

// Demucs is the Separator backed by the demucs CLI.
type Demucs struct {
	runner DemucsRunner
	opts   dependency.DemucsOptions
}

// NewDemucs creates a Demucs separator.
func NewDemucs(runner DemucsRunner, opts dependency.DemucsOptions) *Demucs {
	if opts.Model == "" {
		opts.Model = "htdemucs"
	}
	return &Demucs{runner: runner, opts: opts}
}

// Separate runs Demucs on inputPath and locates the stems it wrote under
// outDir/<model>/<input stem>/.
func (d *Demucs) Separate(ctx context.Context, inputPath, outDir string) (Stems, error) {
	if err := d.runner.RunDemucs(ctx, inputPath, outDir, d.opts); err != nil {
		return Stems{}, err
	}

	base := filepath.Base(inputPath)
	stemDir := filepath.Join(outDir, d.opts.Model, strings.TrimSuffix(base, filepath.Ext(base)))

	vocals := filepath.Join(stemDir, "vocals.mp3")
	if !fileExists(vocals) {
		return Stems{}, fmt.Errorf("demucs output missing vocals stem in %s", stemDir)
	}
	for _, name := range accompanimentStems {
		if p := filepath.Join(stemDir, name); fileExists(p) {
			return Stems{Vocals: vocals, Accompaniment: p}, nil
		}
	}
	return Stems{}, fmt.Errorf("demucs output missing accompaniment stem in %s", stemDir)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Chunked runs a Separator over fixed-length chunks of the input and merges
// the per-chunk stems. Every Separate call holds the shared tool slot.
type Chunked struct {
	separator      Separator
	chunker        *chunker.Chunker
	slot           *semaphore.Weighted
	segmentSeconds int
}

// NewChunked creates a chunked separator.
func NewChunked(separator Separator, ch *chunker.Chunker, slot *semaphore.Weighted, segmentSeconds int) *Chunked {
	return &Chunked{separator: separator, chunker: ch, slot: slot, segmentSeconds: segmentSeconds}
}

// Run separates inputPath into vocalsOut and accompanimentOut using workDir
// for chunks and per-chunk output. The caller owns workDir cleanup.
func (c *Chunked) Run(ctx context.Context, inputPath, workDir, vocalsOut, accompanimentOut string) error {
	chunks, err := c.chunker.Split(ctx, inputPath, filepath.Join(workDir, "chunks"), c.segmentSeconds)
	if err != nil {
		return err
	}

	vocals := make([]string, 0, len(chunks))
	accompaniment := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		stems, err := c.separateChunk(ctx, chunk, filepath.Join(workDir, fmt.Sprintf("separated_%03d", i)))
		if err != nil {
			return fmt.Errorf("separate chunk %d/%d: %w", i+1, len(chunks), err)
		}
		slog.Debug("chunk separated", "chunk", i+1, "of", len(chunks))
		vocals = append(vocals, stems.Vocals)
		accompaniment = append(accompaniment, stems.Accompaniment)
	}

	if err := c.chunker.Merge(ctx, vocals, vocalsOut); err != nil {
		return err
	}
	return c.chunker.Merge(ctx, accompaniment, accompanimentOut)
}

func (c *Chunked) separateChunk(ctx context.Context, chunk, outDir string) (Stems, error) {
	if c.slot != nil {
		waitStart := time.Now()
		if err := c.slot.Acquire(ctx, 1); err != nil {
			return Stems{}, err
		}
		metrics.ObserveToolSlotWait(time.Since(waitStart).Seconds())
		defer c.slot.Release(1)
	}
	return c.separator.Separate(ctx, chunk, outDir)
}
