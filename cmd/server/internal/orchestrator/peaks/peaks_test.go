package peaks

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(samples ...float32) []byte {
	var buf bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(s))
	}
	return buf.Bytes()
}

func repeat(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestFromReader_WindowMaxAbs(t *testing.T) {
	// 4 samples per window at 400 Hz / 100 pps
	data := pcm(0.1, -0.5, 0.25, 0,
		0.75, -0.125, 0, 0,
		-1, 0.5)

	peaks, err := FromReader(bytes.NewReader(data), 400, 100)

	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.75, 1}, peaks, "trailing partial window is emitted")
}

func TestFromReader_RoundsToFourDecimals(t *testing.T) {
	peaks, err := FromReader(bytes.NewReader(pcm(0.123456, -0.0001234)), 2, 1)

	require.NoError(t, err)
	require.Len(t, peaks, 1)
	assert.Equal(t, 0.1235, peaks[0])
}

func TestFromReader_IgnoresTrailingPartialSample(t *testing.T) {
	data := append(pcm(0.5, 0.25), 0x01, 0x02)

	peaks, err := FromReader(bytes.NewReader(data), 2, 1)

	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, peaks)
}

func TestFromReader_PointCountMatchesDuration(t *testing.T) {
	// 1.5 seconds at 44100 Hz -> 150 points at 100 pps
	samples := repeat(0.25, 44100*3/2)

	peaks, err := FromReader(bytes.NewReader(pcm(samples...)), DefaultSampleRate, DefaultPointsPerSecond)

	require.NoError(t, err)
	assert.Len(t, peaks, 150)
	for _, p := range peaks {
		assert.Equal(t, 0.25, p)
	}
}

func TestFromReader_ClampsClippedSamples(t *testing.T) {
	peaks, err := FromReader(bytes.NewReader(pcm(1.7, 0.2, -2.0, 0.1, 0.5, -0.25)), 2, 1)

	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0.5}, peaks)
	for _, p := range peaks {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

// toneReader generates seconds of a looping one-second float32 pattern
// without holding more than that second in memory.
type toneReader struct {
	pattern   []byte
	total     int64
	remaining int64
	off       int
}

func newToneReader(seconds, sampleRate int) *toneReader {
	samples := make([]float32, sampleRate)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	total := int64(seconds) * int64(sampleRate) * bytesPerSample
	return &toneReader{pattern: pcm(samples...), total: total, remaining: total}
}

func (r *toneReader) reset() {
	r.remaining, r.off = r.total, 0
}

func (r *toneReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n := 0
	for n < len(p) {
		c := copy(p[n:], r.pattern[r.off:])
		n += c
		r.off = (r.off + c) % len(r.pattern)
	}
	r.remaining -= int64(n)
	return n, nil
}

func TestStream_MemoryIndependentOfDuration(t *testing.T) {
	if testing.Short() {
		t.Skip("decodes an hour of synthetic audio")
	}

	allocsFor := func(minutes int) (float64, int) {
		r := newToneReader(minutes*60, DefaultSampleRate)
		points := 0
		emit := func(float64) { points++ }
		var err error
		allocs := testing.AllocsPerRun(1, func() {
			r.reset()
			points = 0
			err = Stream(r, DefaultSampleRate, DefaultPointsPerSecond, emit)
		})
		require.NoError(t, err)
		return allocs, points
	}

	short, shortPoints := allocsFor(1)
	long, longPoints := allocsFor(60)

	assert.Equal(t, 60*DefaultPointsPerSecond, shortPoints)
	assert.Equal(t, 60*60*DefaultPointsPerSecond, longPoints)
	assert.Equal(t, short, long, "allocations must not grow with duration")
	assert.LessOrEqual(t, long, 1.0, "only the window buffer is allocated")
}

func TestFromReader_EmptyInput(t *testing.T) {
	peaks, err := FromReader(bytes.NewReader(nil), DefaultSampleRate, DefaultPointsPerSecond)

	require.NoError(t, err)
	assert.Empty(t, peaks)
}

func TestFromReader_Deterministic(t *testing.T) {
	data := pcm(0.3, -0.9, 0.1, 0.2, 0.4, -0.6)

	first, err := FromReader(bytes.NewReader(data), 3, 1)
	require.NoError(t, err)
	second, err := FromReader(bytes.NewReader(data), 3, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFromReader_InvalidRates(t *testing.T) {
	_, err := FromReader(bytes.NewReader(nil), 0, 100)
	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("pipe broke") }

func TestFromReader_ReadError(t *testing.T) {
	_, err := FromReader(errReader{}, 100, 10)
	assert.EqualError(t, err, "pipe broke")
}

// fakeDecoder serves canned PCM and a canned exit error.
type fakeDecoder struct {
	data     []byte
	startErr error
	exitErr  error
	rates    []int
}

type fakeStream struct {
	io.Reader
	exitErr error
}

func (s fakeStream) Close() error { return s.exitErr }

func (d *fakeDecoder) DecodePCM(ctx context.Context, path string, sampleRate int) (io.ReadCloser, error) {
	d.rates = append(d.rates, sampleRate)
	if d.startErr != nil {
		return nil, d.startErr
	}
	return fakeStream{Reader: bytes.NewReader(d.data), exitErr: d.exitErr}, nil
}

func touch(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vocals.mp3")
	require.NoError(t, os.WriteFile(p, []byte("mp3"), 0644))
	return p
}

func TestExtractor_Extract(t *testing.T) {
	dec := &fakeDecoder{data: pcm(repeat(0.5, 882)...)}
	ex := NewExtractor(dec, 0, 0)

	series, err := ex.Extract(context.Background(), touch(t))

	require.NoError(t, err)
	assert.Equal(t, DefaultPointsPerSecond, series.PointsPerSecond)
	assert.Equal(t, []float64{0.5, 0.5}, series.Data)
	assert.Equal(t, []int{DefaultSampleRate}, dec.rates)
}

func TestExtractor_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   func(t *testing.T) string
		dec    *fakeDecoder
		reason string
	}{
		{
			name:   "missing file",
			path:   func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.mp3") },
			dec:    &fakeDecoder{},
			reason: "audio file missing",
		},
		{
			name:   "decoder start failure",
			path:   touch,
			dec:    &fakeDecoder{startErr: errors.New("exec: ffmpeg not found")},
			reason: "decoder failed to start",
		},
		{
			name:   "decoder non-zero exit",
			path:   touch,
			dec:    &fakeDecoder{data: pcm(0.1), exitErr: errors.New("exited with code 1")},
			reason: "decoder exited with error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor(tt.dec, 0, 0).Extract(context.Background(), tt.path(t))

			var exErr *ExtractionError
			require.ErrorAs(t, err, &exErr)
			assert.Equal(t, tt.reason, exErr.Reason)
		})
	}
}
