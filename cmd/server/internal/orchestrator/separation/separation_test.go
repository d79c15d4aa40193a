package separation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
)

// fakeRunner writes the stem files demucs would produce.
type fakeRunner struct {
	stems []string
	err   error
	calls []dependency.DemucsOptions
}

func (f *fakeRunner) RunDemucs(ctx context.Context, inputPath, outputDir string, opts dependency.DemucsOptions) error {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return f.err
	}
	base := filepath.Base(inputPath)
	dir := filepath.Join(outputDir, opts.Model, strings.TrimSuffix(base, filepath.Ext(base)))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, s := range f.stems {
		if err := os.WriteFile(filepath.Join(dir, s), []byte(s), 0644); err != nil {
			return err
		}
	}
	return nil
}

func TestDemucs_LocatesStems(t *testing.T) {
	tests := []struct {
		name    string
		stems   []string
		wantAcc string
		wantErr string
	}{
		{"two stems", []string{"vocals.mp3", "no_vocals.mp3"}, "no_vocals.mp3", ""},
		{"guitar fallback", []string{"vocals.mp3", "guitar.mp3", "other.mp3"}, "guitar.mp3", ""},
		{"other fallback", []string{"vocals.mp3", "other.mp3"}, "other.mp3", ""},
		{"no vocals", []string{"no_vocals.mp3"}, "", "vocals stem"},
		{"no accompaniment", []string{"vocals.mp3"}, "", "accompaniment stem"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{stems: tt.stems}
			d := NewDemucs(runner, dependency.DemucsOptions{})

			stems, err := d.Separate(context.Background(), "/x/chunk_000.wav", t.TempDir())

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "vocals.mp3", filepath.Base(stems.Vocals))
			assert.Equal(t, tt.wantAcc, filepath.Base(stems.Accompaniment))
			assert.Contains(t, stems.Vocals, filepath.Join("htdemucs", "chunk_000"))
		})
	}
}

func TestDemucs_RunnerError(t *testing.T) {
	cause := errors.New("demucs separation failed (exit code 137): Killed")
	d := NewDemucs(&fakeRunner{err: cause}, dependency.DemucsOptions{Model: "htdemucs_6s"})

	_, err := d.Separate(context.Background(), "/x/a.wav", t.TempDir())
	assert.ErrorIs(t, err, cause)
}

// segmentingTool emulates ffmpeg segmenting and concat for the chunker.
type segmentingTool struct{ chunks int }

func (s segmentingTool) SegmentAudio(ctx context.Context, in string, secs int, pattern string) error {
	for i := 0; i < s.chunks; i++ {
		if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte("c"), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (s segmentingTool) ConcatAudio(ctx context.Context, list, out string) error {
	data, err := os.ReadFile(list)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0644)
}

// countingSeparator tracks concurrency and produces stems per chunk.
type countingSeparator struct {
	active, maxActive atomic.Int32
	calls             atomic.Int32
	failOn            int32
}

func (c *countingSeparator) Separate(ctx context.Context, in, outDir string) (Stems, error) {
	n := c.calls.Add(1)
	cur := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		m := c.maxActive.Load()
		if cur <= m || c.maxActive.CompareAndSwap(m, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if c.failOn > 0 && n == c.failOn {
		return Stems{}, errors.New("out of memory")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return Stems{}, err
	}
	v := filepath.Join(outDir, "vocals.mp3")
	a := filepath.Join(outDir, "no_vocals.mp3")
	_ = os.WriteFile(v, []byte("v"), 0644)
	_ = os.WriteFile(a, []byte("a"), 0644)
	return Stems{Vocals: v, Accompaniment: a}, nil
}

func TestChunked_RunMergesPerRole(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "processing.wav")
	require.NoError(t, os.WriteFile(src, []byte("wav"), 0644))

	sep := &countingSeparator{}
	c := NewChunked(sep, chunker.New(segmentingTool{chunks: 2}), semaphore.NewWeighted(1), 600)

	vocalsOut := filepath.Join(dir, "vocals.mp3")
	accOut := filepath.Join(dir, "accompaniment.mp3")
	require.NoError(t, c.Run(context.Background(), src, filepath.Join(dir, "work"), vocalsOut, accOut))

	assert.Equal(t, int32(2), sep.calls.Load())
	list, err := os.ReadFile(vocalsOut)
	require.NoError(t, err)
	assert.Contains(t, string(list), "separated_000")
	assert.Contains(t, string(list), "separated_001")
	assert.Less(t, strings.Index(string(list), "separated_000"), strings.Index(string(list), "separated_001"))

	acc, err := os.ReadFile(accOut)
	require.NoError(t, err)
	assert.Contains(t, string(acc), "no_vocals.mp3")
}

func TestChunked_SlotBoundsConcurrencyAcrossRuns(t *testing.T) {
	sep := &countingSeparator{}
	slot := semaphore.NewWeighted(1)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			dir := t.TempDir()
			src := filepath.Join(dir, "in.wav")
			if err := os.WriteFile(src, []byte("x"), 0644); err != nil {
				errs <- err
				return
			}
			c := NewChunked(sep, chunker.New(segmentingTool{chunks: 2}), slot, 600)
			errs <- c.Run(context.Background(), src, filepath.Join(dir, "w"), filepath.Join(dir, "v.mp3"), filepath.Join(dir, "a.mp3"))
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}

	assert.Equal(t, int32(6), sep.calls.Load())
	assert.Equal(t, int32(1), sep.maxActive.Load(), "only one separation may run at a time")
}

func TestChunked_ChunkFailureStopsRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	sep := &countingSeparator{failOn: 2}
	c := NewChunked(sep, chunker.New(segmentingTool{chunks: 3}), semaphore.NewWeighted(1), 600)

	err := c.Run(context.Background(), src, filepath.Join(dir, "w"), filepath.Join(dir, "v.mp3"), filepath.Join(dir, "a.mp3"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/3")
	assert.Equal(t, int32(2), sep.calls.Load())
	_, statErr := os.Stat(filepath.Join(dir, "v.mp3"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestChunked_SplitErrorPropagates(t *testing.T) {
	c := NewChunked(&countingSeparator{}, chunker.New(segmentingTool{chunks: 1}), nil, 600)

	err := c.Run(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), t.TempDir(), "v", "a")

	var splitErr *chunker.SplitError
	assert.ErrorAs(t, err, &splitErr)
}
