package dependency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/houzhh15/refret/pkg/metrics"
)

// DependencyClient is the audio tool facade used by the pipeline stages.
// It hides whether ffmpeg and demucs run locally or behind the tool runner.
//
// Every high-level method follows the same shape:
//   - build a CommandRequest
//   - validate it
//   - execute it through the configured executor
//   - turn a non-zero exit into an error carrying stderr
type DependencyClient struct {
	executor    DependencyExecutor
	local       *LocalExecutor
	config      ExecutorConfig
	pathManager *PathManager
}

// NewClient creates a new DependencyClient based on the provided configuration.
// It selects the appropriate executor (Local, Remote, or Fallback) based on config.Mode.
func NewClient(config ExecutorConfig) (*DependencyClient, error) {
	var executor DependencyExecutor

	switch config.Mode {
	case ModeLocal:
		executor = NewLocalExecutor(config)
	case ModeRemote:
		executor = NewRemoteExecutor(config)
	case ModeFallback:
		executor = NewFallbackExecutor(config)
	default:
		return nil, fmt.Errorf("invalid execution mode: %s (must be 'local', 'remote', or 'fallback')", config.Mode)
	}

	return NewClientWithExecutor(executor, config), nil
}

// NewClientWithExecutor wires a client around an existing executor.
func NewClientWithExecutor(executor DependencyExecutor, config ExecutorConfig) *DependencyClient {
	return &DependencyClient{
		executor:    executor,
		local:       NewLocalExecutor(config),
		config:      config,
		pathManager: NewPathManager(config.SharedVolumePath),
	}
}

// run validates and executes req, failing on a non-zero exit.
func (c *DependencyClient) run(ctx context.Context, req CommandRequest, op string) (CommandResponse, error) {
	if req.Timeout == 0 {
		req.Timeout = c.config.DefaultTimeout
	}
	if err := ValidateCommandRequest(req, c.config); err != nil {
		return CommandResponse{}, fmt.Errorf("command validation failed: %w", err)
	}

	start := time.Now()
	resp, err := c.executor.ExecuteCommand(ctx, req)
	if c.config.Mode != ModeFallback {
		// FallbackExecutor records its own per-mode metrics
		metrics.RecordToolExecution(req.Command, string(c.config.Mode), executionStatus(resp, err))
		metrics.RecordToolDuration(req.Command, string(c.config.Mode), time.Since(start).Seconds())
	}
	if err != nil {
		return resp, fmt.Errorf("%s failed: %w", op, err)
	}
	if !resp.Success || resp.ExitCode != 0 {
		return resp, fmt.Errorf("%s failed (exit code %d): %s", op, resp.ExitCode, resp.Stderr)
	}
	return resp, nil
}

func ffmpegArgs(args ...string) []string {
	return append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
}

// ConvertToMP3 encodes the audio stream of inputPath as MP3 at the given bitrate.
//
// Example:
//
//	err := client.ConvertToMP3(ctx, "/data/lessons/<id>/upload.m4a", "/data/lessons/<id>/original.mp3", "192k")
func (c *DependencyClient) ConvertToMP3(ctx context.Context, inputPath, outputPath, bitrate string) error {
	if bitrate == "" {
		bitrate = "192k"
	}
	req := CommandRequest{
		Command: "ffmpeg",
		Args: ffmpegArgs(
			"-i", inputPath,
			"-vn",
			"-c:a", "libmp3lame",
			"-b:a", bitrate,
			outputPath,
		),
	}
	_, err := c.run(ctx, req, "mp3 conversion")
	return err
}

// ConvertToWAV decodes inputPath to PCM WAV with the given layout.
// The pipeline uses stereo 44.1 kHz for the processing copy.
func (c *DependencyClient) ConvertToWAV(ctx context.Context, inputPath, outputPath string, channels, sampleRate int) error {
	req := CommandRequest{
		Command: "ffmpeg",
		Args: ffmpegArgs(
			"-i", inputPath,
			"-vn",
			"-ac", strconv.Itoa(channels),
			"-ar", strconv.Itoa(sampleRate),
			outputPath,
		),
	}
	_, err := c.run(ctx, req, "wav conversion")
	return err
}

// SegmentAudio splits inputPath into consecutive pieces of segmentSeconds
// using the segment muxer without re-encoding. pattern is a printf-style
// output path such as ".../chunk_%03d.wav".
func (c *DependencyClient) SegmentAudio(ctx context.Context, inputPath string, segmentSeconds int, pattern string) error {
	req := CommandRequest{
		Command: "ffmpeg",
		Args: ffmpegArgs(
			"-i", inputPath,
			"-f", "segment",
			"-segment_time", strconv.Itoa(segmentSeconds),
			"-reset_timestamps", "1",
			"-c", "copy",
			pattern,
		),
	}
	_, err := c.run(ctx, req, "audio segmentation")
	return err
}

// ConcatAudio joins the files named in listFile (concat demuxer format)
// into outputPath without re-encoding.
func (c *DependencyClient) ConcatAudio(ctx context.Context, listFile, outputPath string) error {
	req := CommandRequest{
		Command: "ffmpeg",
		Args: ffmpegArgs(
			"-f", "concat",
			"-safe", "0",
			"-i", listFile,
			"-c", "copy",
			outputPath,
		),
	}
	_, err := c.run(ctx, req, "audio concat")
	return err
}

// CutRegion extracts [start, start+duration) seconds of inputPath as a mono
// 22.05 kHz WAV, the input format of the notation service.
func (c *DependencyClient) CutRegion(ctx context.Context, inputPath string, start, duration float64, outputPath string) error {
	req := CommandRequest{
		Command: "ffmpeg",
		Args: ffmpegArgs(
			"-ss", strconv.FormatFloat(start, 'f', 3, 64),
			"-t", strconv.FormatFloat(duration, 'f', 3, 64),
			"-i", inputPath,
			"-ac", "1",
			"-ar", "22050",
			outputPath,
		),
	}
	_, err := c.run(ctx, req, "region cut")
	return err
}

// RunDemucs separates inputPath into vocals and the remaining stems, writing
// MP3 stems under outputDir/<model>/<input stem>/.
//
// Demucs runs with one job and single-threaded BLAS so that one chunk fits in
// a small memory budget.
func (c *DependencyClient) RunDemucs(ctx context.Context, inputPath, outputDir string, opts DemucsOptions) error {
	opts = opts.withDefaults()

	req := CommandRequest{
		Command: "demucs",
		Args: []string{
			"-n", opts.Model,
			"-o", outputDir,
			"--two-stems", "vocals",
			"--mp3",
			"--mp3-bitrate", "192",
			"--shifts", strconv.Itoa(opts.Shifts),
			"--overlap", strconv.FormatFloat(opts.Overlap, 'f', -1, 64),
			"-j", "1",
			"--segment", strconv.Itoa(opts.Segment),
			"-d", opts.Device,
			inputPath,
		},
		Env: map[string]string{
			"OMP_NUM_THREADS": "1",
			"MKL_NUM_THREADS": "1",
		},
		Timeout: opts.Timeout,
	}

	slog.Debug("demucs separation starting", "input", inputPath, "model", opts.Model, "device", opts.Device)
	_, err := c.run(ctx, req, "demucs separation")
	return err
}

// DecodePCM streams inputPath as mono little-endian float32 samples at
// sampleRate. Decoding always runs locally since the output is consumed as
// a stream.
func (c *DependencyClient) DecodePCM(ctx context.Context, inputPath string, sampleRate int) (io.ReadCloser, error) {
	req := CommandRequest{
		Command: "ffmpeg",
		Args: []string{
			"-hide_banner", "-loglevel", "error",
			"-i", inputPath,
			"-f", "f32le",
			"-ac", "1",
			"-ar", strconv.Itoa(sampleRate),
			"-",
		},
		Timeout: c.config.DefaultTimeout,
	}
	if err := ValidateCommandRequest(req, c.config); err != nil {
		return nil, fmt.Errorf("command validation failed: %w", err)
	}

	stream, err := c.local.StartStream(ctx, req)
	if err != nil {
		metrics.RecordToolExecution(req.Command, string(ModeLocal), "failed")
		return nil, err
	}
	return &meteredStream{Stream: stream}, nil
}

type meteredStream struct {
	*Stream
}

func (m *meteredStream) Close() error {
	err := m.Stream.Close()
	metrics.RecordToolExecution("ffmpeg", string(ModeLocal), executionStatus(CommandResponse{Success: err == nil}, err))
	metrics.RecordToolDuration("ffmpeg", string(ModeLocal), m.Elapsed().Seconds())
	return err
}

// HealthCheck verifies that the underlying executor is ready to handle requests.
func (c *DependencyClient) HealthCheck(ctx context.Context) error {
	return c.executor.HealthCheck(ctx)
}

// PathManager returns the path manager for the shared volume.
func (c *DependencyClient) PathManager() *PathManager {
	return c.pathManager
}

// Config returns the executor configuration (read-only access).
func (c *DependencyClient) Config() ExecutorConfig {
	return c.config
}

// ExecuteCommand executes a command request directly through the underlying executor.
func (c *DependencyClient) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	return c.executor.ExecuteCommand(ctx, req)
}
