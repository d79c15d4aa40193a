package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/houzhh15/refret/cmd/server/internal/metrics"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/refret/pkg/logger"
	toolmetrics "github.com/houzhh15/refret/pkg/metrics"
)

// runPipeline executes every step of a fresh upload. Progress is reported
// before each step starts; the first failing step ends the run.
func (o *Orchestrator) runPipeline(ctx context.Context, id string) {
	metrics.PipelineStarted()
	defer metrics.PipelineFinished()
	defer o.cleanupTemporary(id)

	for i, step := range pipelineSteps {
		var err error
		if i == 0 {
			err = o.tracker.Start(id, step.progress, step.message)
		} else {
			err = o.tracker.Advance(id, step.progress, step.message)
		}
		if err != nil {
			o.logger.Warn("status write failed", "lesson_id", id, "stage", step.stage, "error", err)
		}

		err = o.runStage(ctx, id, step.stage, o.pipelineStage(step.stage))
		if err == nil {
			continue
		}
		if step.stage == StagePeaks {
			o.logger.Warn("peak generation failed, peaks will be generated on first read",
				"lesson_id", id, "error", err)
			continue
		}
		o.fail(id, step.stage, err)
		return
	}

	if err := o.tracker.Complete(id, completeMessage); err != nil {
		o.logger.Warn("status write failed", "lesson_id", id, "error", err)
	}
	o.logger.Info("pipeline completed", "lesson_id", id)
}

func (o *Orchestrator) pipelineStage(stage Stage) func(ctx context.Context, id string) error {
	switch stage {
	case StageNormalize:
		return o.normalize
	case StageSeparate:
		return func(ctx context.Context, id string) error {
			return o.separate(ctx, id, o.store.ProcessingWAVPath(id), false)
		}
	case StagePeaks:
		return o.generatePeaks
	case StageTranscribe:
		return o.transcribe
	case StageSummarize:
		return o.summarize
	default:
		return func(context.Context, string) error {
			return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
		}
	}
}

// runStage times one stage, logs it and records its metrics. Errors come
// back classified with an error code.
func (o *Orchestrator) runStage(ctx context.Context, id string, stage Stage, fn func(ctx context.Context, id string) error) error {
	start := time.Now()
	logger.LogStageEvent(o.logger, id, string(stage), "start", 0, "")

	err := fn(ctx, id)
	elapsed := time.Since(start)
	metrics.RecordStage(string(stage), err == nil, elapsed.Seconds())
	if err != nil {
		err = classify(stage, err)
		code := string(CodeOf(err))
		metrics.RecordError(string(stage), code)
		logger.LogStageEvent(o.logger, id, string(stage), "error", elapsed.Milliseconds(), code)
		return err
	}
	logger.LogStageEvent(o.logger, id, string(stage), "success", elapsed.Milliseconds(), "")
	return nil
}

func (o *Orchestrator) fail(id string, stage Stage, err error) {
	o.logger.Error("lesson processing failed", "lesson_id", id, "stage", stage, "error", err)
	if werr := o.tracker.Fail(id, statusMessage(err)); werr != nil {
		o.logger.Warn("status write failed", "lesson_id", id, "error", werr)
	}
}

func (o *Orchestrator) cleanupTemporary(id string) {
	if err := o.store.RemoveTemporary(id); err != nil {
		o.logger.Warn("temporary state cleanup failed", "lesson_id", id, "error", err)
	}
}

// normalize converts the upload into original.mp3 and the processing WAV.
func (o *Orchestrator) normalize(ctx context.Context, id string) error {
	upload, err := o.store.Path(id, artifact.Upload)
	if err != nil {
		return err
	}
	original, err := o.store.Path(id, artifact.Original)
	if err != nil {
		return err
	}
	if err := o.tool.ConvertToMP3(ctx, upload, original, o.cfg.MP3Bitrate); err != nil {
		return fmt.Errorf("encode original.mp3: %w", err)
	}
	if err := o.tool.ConvertToWAV(ctx, upload, o.store.ProcessingWAVPath(id), o.cfg.WorkingChannels, o.cfg.WorkingSampleRate); err != nil {
		return fmt.Errorf("decode processing wav: %w", err)
	}
	return nil
}

// separate runs chunked separation of input inside a scratch directory and
// moves both tracks into place only when both were produced. With decode
// set, input is first converted to the working WAV format.
func (o *Orchestrator) separate(ctx context.Context, id, input string, decode bool) error {
	return chunker.WithWorkDir(o.store.WorkRoot(id), "separate", func(dir string) error {
		src := input
		if decode {
			src = filepath.Join(dir, "input.wav")
			if err := o.tool.ConvertToWAV(ctx, input, src, o.cfg.WorkingChannels, o.cfg.WorkingSampleRate); err != nil {
				return fmt.Errorf("decode %s: %w", filepath.Base(input), err)
			}
		}

		vocals := filepath.Join(dir, "vocals.mp3")
		accompaniment := filepath.Join(dir, "accompaniment.mp3")
		if err := o.separator.Run(ctx, src, dir, vocals, accompaniment); err != nil {
			return err
		}
		if err := o.store.Replace(id, artifact.Vocals, vocals); err != nil {
			return err
		}
		return o.store.Replace(id, artifact.Accompaniment, accompaniment)
	})
}

// generatePeaks extracts both peak series concurrently.
func (o *Orchestrator) generatePeaks(ctx context.Context, id string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, track := range []artifact.Name{artifact.Vocals, artifact.Accompaniment} {
		g.Go(func() error {
			_, err := o.computePeaks(gctx, id, track)
			return err
		})
	}
	return g.Wait()
}

func (o *Orchestrator) computePeaks(ctx context.Context, id string, track artifact.Name) (artifact.PeakSeries, error) {
	path, err := o.store.Path(id, track)
	if err != nil {
		return artifact.PeakSeries{}, err
	}
	series, err := o.extractor.Extract(ctx, path)
	if err != nil {
		return artifact.PeakSeries{}, err
	}
	if err := o.store.SavePeaks(id, track, series); err != nil {
		return artifact.PeakSeries{}, fmt.Errorf("save %s peaks: %w", track, err)
	}
	metrics.AddPeakPoints(len(series.Data))
	return series, nil
}

// transcribe recognizes the merged vocal track and stores the transcript.
func (o *Orchestrator) transcribe(ctx context.Context, id string) error {
	vocals, err := o.store.Path(id, artifact.Vocals)
	if err != nil {
		return err
	}

	waitStart := time.Now()
	if err := o.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	toolmetrics.ObserveToolSlotWait(time.Since(waitStart).Seconds())
	result, err := o.transcriber.Transcribe(ctx, vocals, o.cfg.transcribeOptions())
	o.slot.Release(1)
	if err != nil {
		return fmt.Errorf("%s: %w", o.transcriber.Name(), err)
	}

	segments := make([]artifact.TranscriptSegment, 0, len(result.Segments))
	for _, s := range result.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, artifact.TranscriptSegment{Start: s.Start, End: s.End, Text: text})
	}

	if err := o.store.SaveTranscript(id, artifact.Transcript{Segments: segments}); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if err := o.records.SetTranscript(ctx, id, artifact.JoinSegmentText(segments)); err != nil {
		return fmt.Errorf("cache transcript: %w", err)
	}
	o.logger.Info("transcript stored", "lesson_id", id, "segments", len(segments), "backend", o.transcriber.Name())
	return nil
}

// summarize asks the LLM for a summary of the stored transcript. An error
// document is a successful result.
func (o *Orchestrator) summarize(ctx context.Context, id string) error {
	transcript, err := o.store.LoadTranscript(id)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	doc, err := o.summarizer.Summarize(ctx, transcript.Segments)
	if err != nil {
		return err
	}
	if err := o.store.SaveSummary(id, doc); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if err := o.records.SetSummary(ctx, id, doc.Summary, doc.Chords); err != nil {
		return fmt.Errorf("cache summary: %w", err)
	}
	if !doc.Usable() {
		o.logger.Warn("summary unavailable", "lesson_id", id, "reason", doc.Error)
	}
	return nil
}
