// Package peaks computes waveform overview data: the maximum absolute sample
// value per fixed window, streamed from a decoder so memory stays at one
// window regardless of track length.
package peaks

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
)

const (
	DefaultSampleRate      = 44100
	DefaultPointsPerSecond = 100

	bytesPerSample = 4
)

// Decoder yields mono little-endian float32 PCM for an audio file.
type Decoder interface {
	DecodePCM(ctx context.Context, path string, sampleRate int) (io.ReadCloser, error)
}

// ExtractionError reports why a peak series could not be produced.
type ExtractionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract peaks from %s: %s: %v", filepath.Base(e.Path), e.Reason, e.Err)
	}
	return fmt.Sprintf("extract peaks from %s: %s", filepath.Base(e.Path), e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns audio files into peak series.
type Extractor struct {
	decoder         Decoder
	sampleRate      int
	pointsPerSecond int
}

// NewExtractor creates an Extractor. Zero rates select the defaults.
func NewExtractor(decoder Decoder, sampleRate, pointsPerSecond int) *Extractor {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if pointsPerSecond <= 0 {
		pointsPerSecond = DefaultPointsPerSecond
	}
	return &Extractor{decoder: decoder, sampleRate: sampleRate, pointsPerSecond: pointsPerSecond}
}

// Extract decodes path and returns its peak series.
func (e *Extractor) Extract(ctx context.Context, path string) (artifact.PeakSeries, error) {
	if _, err := os.Stat(path); err != nil {
		return artifact.PeakSeries{}, &ExtractionError{Path: path, Reason: "audio file missing", Err: err}
	}

	stream, err := e.decoder.DecodePCM(ctx, path, e.sampleRate)
	if err != nil {
		return artifact.PeakSeries{}, &ExtractionError{Path: path, Reason: "decoder failed to start", Err: err}
	}

	data, readErr := FromReader(stream, e.sampleRate, e.pointsPerSecond)
	closeErr := stream.Close()
	if readErr != nil {
		return artifact.PeakSeries{}, &ExtractionError{Path: path, Reason: "reading decoded audio failed", Err: readErr}
	}
	if closeErr != nil {
		return artifact.PeakSeries{}, &ExtractionError{Path: path, Reason: "decoder exited with error", Err: closeErr}
	}

	return artifact.PeakSeries{Data: data, PointsPerSecond: e.pointsPerSecond}, nil
}

// FromReader computes peaks from raw float32 LE mono samples.
func FromReader(r io.Reader, sampleRate, pointsPerSecond int) ([]float64, error) {
	out := make([]float64, 0, 1024)
	if err := Stream(r, sampleRate, pointsPerSecond, func(peak float64) {
		out = append(out, peak)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream reads raw float32 LE mono samples and calls emit once per window.
// It holds a single window in memory however long r is.
//
// Each window holds sampleRate/pointsPerSecond samples; the value is the
// largest |sample| clamped to [0, 1] and rounded to 4 decimals. A trailing
// partial window is kept, trailing bytes that do not form a whole sample
// are dropped.
func Stream(r io.Reader, sampleRate, pointsPerSecond int, emit func(peak float64)) error {
	if sampleRate <= 0 || pointsPerSecond <= 0 {
		return fmt.Errorf("invalid rates: sample_rate=%d points_per_second=%d", sampleRate, pointsPerSecond)
	}
	windowSamples := sampleRate / pointsPerSecond
	if windowSamples < 1 {
		windowSamples = 1
	}

	buf := make([]byte, windowSamples*bytesPerSample)
	for {
		n, err := io.ReadFull(r, buf)
		if samples := n / bytesPerSample; samples > 0 {
			emit(windowPeak(buf[:samples*bytesPerSample]))
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
	}
}

func windowPeak(window []byte) float64 {
	var peak float64
	for i := 0; i+bytesPerSample <= len(window); i += bytesPerSample {
		v := math.Abs(float64(math.Float32frombits(binary.LittleEndian.Uint32(window[i:]))))
		if v > peak {
			peak = v
		}
	}
	// clipped float sources decode above full scale
	if peak > 1 || math.IsNaN(peak) {
		peak = 1
	}
	return math.Round(peak*10000) / 10000
}
