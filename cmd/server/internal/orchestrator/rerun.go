package orchestrator

import (
	"context"
	"fmt"

	"github.com/houzhh15/refret/cmd/server/internal/metrics"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
)

// Rerun re-executes a single stage of an existing lesson in the background.
// Validation errors are returned synchronously and leave the status record
// untouched: ErrLessonNotFound, ErrUnknownStage, *MissingUpstreamArtifact,
// then ErrLessonBusy.
func (o *Orchestrator) Rerun(ctx context.Context, id, stageName string) error {
	if err := o.ensureLesson(ctx, id); err != nil {
		return err
	}
	stage, err := ParseRerunStage(stageName)
	if err != nil {
		return err
	}
	input, err := o.checkUpstream(id, stage)
	if err != nil {
		return err
	}
	if !o.acquire(id, "rerun:"+string(stage)) {
		if o.isClosing() {
			return ErrShuttingDown
		}
		return ErrLessonBusy
	}

	o.logger.Info("stage re-run dispatched", "lesson_id", id, "stage", stage)
	o.goBackground(id, func(ctx context.Context) { o.runRerun(ctx, id, stage, input) })
	return nil
}

// checkUpstream verifies the artifacts a stage reads. For separate it
// returns the audio to separate.
func (o *Orchestrator) checkUpstream(id string, stage Stage) (string, error) {
	missing := func(name artifact.Name, runFirst Stage) error {
		return &MissingUpstreamArtifact{Stage: stage, RunFirst: runFirst, Artifact: string(name)}
	}

	switch stage {
	case StageSeparate:
		for _, name := range []artifact.Name{artifact.Original, artifact.Upload} {
			if o.store.Exists(id, name) {
				return o.store.Path(id, name)
			}
		}
		return "", fmt.Errorf("original audio: %w", ErrArtifactNotFound)
	case StageTranscribe:
		if !o.store.Exists(id, artifact.Vocals) {
			return "", missing(artifact.Vocals, StageSeparate)
		}
	case StageSummarize:
		if !o.store.Exists(id, artifact.TranscriptSegments) {
			return "", missing(artifact.TranscriptSegments, StageTranscribe)
		}
	case StagePeaks:
		for _, track := range []artifact.Name{artifact.Vocals, artifact.Accompaniment} {
			if !o.store.Exists(id, track) {
				return "", missing(track, StageSeparate)
			}
		}
	}
	return "", nil
}

func (o *Orchestrator) runRerun(ctx context.Context, id string, stage Stage, input string) {
	metrics.PipelineStarted()
	defer metrics.PipelineFinished()
	defer o.cleanupTemporary(id)

	if err := o.tracker.Start(id, rerunProgress, fmt.Sprintf("Re-running %s", stage)); err != nil {
		o.logger.Warn("status write failed", "lesson_id", id, "error", err)
	}

	var fn func(ctx context.Context, id string) error
	switch stage {
	case StageSeparate:
		fn = func(ctx context.Context, id string) error { return o.rerunSeparate(ctx, id, input) }
	case StageTranscribe:
		fn = o.rerunTranscribe
	case StageSummarize:
		fn = o.summarize
	case StagePeaks:
		fn = o.generatePeaks
	}

	if err := o.runStage(ctx, id, stage, fn); err != nil {
		o.fail(id, stage, err)
		return
	}
	if failed, err := o.resumeMissing(ctx, id); err != nil {
		o.fail(id, failed, err)
		return
	}
	if err := o.tracker.Complete(id, completeMessage); err != nil {
		o.logger.Warn("status write failed", "lesson_id", id, "error", err)
	}
	o.logger.Info("stage re-run completed", "lesson_id", id, "stage", stage)
}

// resumeOutputs maps the stages a completed lesson cannot lack to the
// artifact each one writes.
var resumeOutputs = map[Stage]artifact.Name{
	StageTranscribe: artifact.TranscriptSegments,
	StageSummarize:  artifact.Summary,
}

// resumeMissing runs, in pipeline order, the transcribe and summarize steps
// whose artifact is absent, so a re-run never reports completed without a
// transcript and a summary. It returns the stage that failed.
func (o *Orchestrator) resumeMissing(ctx context.Context, id string) (Stage, error) {
	for _, step := range pipelineSteps {
		out, ok := resumeOutputs[step.stage]
		if !ok || o.store.Exists(id, out) {
			continue
		}
		o.logger.Info("resuming missing stage", "lesson_id", id, "stage", step.stage)
		if err := o.tracker.Advance(id, step.progress, step.message); err != nil {
			o.logger.Warn("status write failed", "lesson_id", id, "stage", step.stage, "error", err)
		}
		if err := o.runStage(ctx, id, step.stage, o.pipelineStage(step.stage)); err != nil {
			return step.stage, err
		}
	}
	return "", nil
}

// rerunSeparate replaces both tracks and rebuilds the peak series. The
// transcript and summary derived from the old tracks are kept but marked
// stale until their stages run again.
func (o *Orchestrator) rerunSeparate(ctx context.Context, id, input string) error {
	if err := o.separate(ctx, id, input, true); err != nil {
		return err
	}

	if err := o.store.Remove(id, artifact.PeaksVocals, artifact.PeaksAccompaniment); err != nil {
		return fmt.Errorf("remove old peaks: %w", err)
	}
	if err := o.store.MarkStale(id, artifact.TranscriptText, artifact.TranscriptSegments, artifact.Summary); err != nil {
		return fmt.Errorf("mark derived artifacts stale: %w", err)
	}

	if err := o.generatePeaks(ctx, id); err != nil {
		o.logger.Warn("peak regeneration failed, peaks will be generated on first read",
			"lesson_id", id, "error", err)
	}
	return nil
}

// rerunTranscribe replaces the transcript and marks the summary built from
// the previous one stale.
func (o *Orchestrator) rerunTranscribe(ctx context.Context, id string) error {
	if err := o.transcribe(ctx, id); err != nil {
		return err
	}
	if err := o.store.MarkStale(id, artifact.Summary); err != nil {
		return fmt.Errorf("mark summary stale: %w", err)
	}
	return nil
}

// Stale lists the artifacts of a lesson whose inputs were replaced by a
// re-run and that have not been regenerated since.
func (o *Orchestrator) Stale(id string) []artifact.Name {
	return o.store.Stale(id)
}
