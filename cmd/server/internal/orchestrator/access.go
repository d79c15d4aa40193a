package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/status"
)

// AudioTracks are the audio artifacts that can be streamed to clients.
var AudioTracks = []artifact.Name{artifact.Original, artifact.Vocals, artifact.Accompaniment}

// ensureLesson returns ErrLessonNotFound unless id is well formed and the
// lesson has a metadata row or a directory.
func (o *Orchestrator) ensureLesson(ctx context.Context, id string) error {
	if _, err := o.store.Path(id, artifact.Original); err != nil {
		return fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	exists, err := o.records.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup lesson: %w", err)
	}
	if exists {
		return nil
	}
	if info, err := os.Stat(o.store.LessonDir(id)); err == nil && info.IsDir() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrLessonNotFound, id)
}

// Status returns the pipeline status of a lesson. A lesson without any
// record reports status.Unknown.
func (o *Orchestrator) Status(ctx context.Context, id string) (status.Record, error) {
	if err := o.ensureLesson(ctx, id); err != nil {
		return status.Record{}, err
	}
	rec, found, err := o.tracker.Get(id)
	if err != nil {
		return status.Record{}, fmt.Errorf("read status: %w", err)
	}
	if !found {
		return status.Record{Status: status.Unknown}, nil
	}
	return rec, nil
}

// Artifacts lists the artifacts present for a lesson.
func (o *Orchestrator) Artifacts(id string) []artifact.Name {
	return o.store.Present(id)
}

// AudioPath resolves a streamable track.
func (o *Orchestrator) AudioPath(ctx context.Context, id, track string) (string, error) {
	name := artifact.Name(track)
	known := false
	for _, t := range AudioTracks {
		known = known || t == name
	}
	if !known {
		return "", fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	if err := o.ensureLesson(ctx, id); err != nil {
		return "", err
	}
	if !o.store.Exists(id, name) {
		return "", fmt.Errorf("%s: %w", track, ErrArtifactNotFound)
	}
	return o.store.Path(id, name)
}

// Transcript loads the stored transcript.
func (o *Orchestrator) Transcript(ctx context.Context, id string) (artifact.Transcript, error) {
	if err := o.ensureLesson(ctx, id); err != nil {
		return artifact.Transcript{}, err
	}
	return o.store.LoadTranscript(id)
}

// Summary loads the stored summary document, error documents included.
func (o *Orchestrator) Summary(ctx context.Context, id string) (artifact.SummaryDocument, error) {
	if err := o.ensureLesson(ctx, id); err != nil {
		return artifact.SummaryDocument{}, err
	}
	return o.store.LoadSummary(id)
}

// Peaks returns the peak series of a track, computing and persisting it
// when absent. Concurrent requests for the same series share one
// extraction, which is not cancelled when a caller goes away. Extraction
// runs under a shared hold: it fails with ErrLessonBusy while a pipeline,
// re-run or delete owns the lesson, and delete is refused while it runs.
func (o *Orchestrator) Peaks(ctx context.Context, id, track string) (artifact.PeakSeries, error) {
	name := artifact.Name(track)
	if _, err := artifact.PeaksFor(name); err != nil {
		return artifact.PeakSeries{}, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	if err := o.ensureLesson(ctx, id); err != nil {
		return artifact.PeakSeries{}, err
	}

	series, err := o.store.LoadPeaks(id, name)
	if !errors.Is(err, artifact.ErrNotFound) {
		return series, err
	}
	if !o.store.Exists(id, name) {
		return artifact.PeakSeries{}, fmt.Errorf("%s track: %w", track, ErrArtifactNotFound)
	}

	v, err, shared := o.peakGroup.Do(id+"/"+track, func() (any, error) {
		return o.lazyPeaks(context.WithoutCancel(ctx), id, name)
	})
	switch {
	case errors.Is(err, ErrLessonBusy), errors.Is(err, ErrShuttingDown), errors.Is(err, ErrArtifactNotFound):
		return artifact.PeakSeries{}, err
	case err != nil:
		return artifact.PeakSeries{}, classify(StagePeaks, err)
	}
	o.logger.Debug("peaks generated on demand", "lesson_id", id, "track", track, "shared", shared)
	return v.(artifact.PeakSeries), nil
}

// lazyPeaks extracts one series under a shared hold. The track is looked up
// again once the hold is taken since a delete or re-run may have finished
// in between.
func (o *Orchestrator) lazyPeaks(ctx context.Context, id string, track artifact.Name) (artifact.PeakSeries, error) {
	if err := o.holdShared(id); err != nil {
		return artifact.PeakSeries{}, err
	}
	defer o.releaseShared(id)

	if series, err := o.store.LoadPeaks(id, track); err == nil {
		return series, nil
	}
	if !o.store.Exists(id, track) {
		return artifact.PeakSeries{}, fmt.Errorf("%s track: %w", track, ErrArtifactNotFound)
	}
	return o.computePeaks(ctx, id, track)
}

// Delete removes every trace of a lesson. Lessons with work in flight are
// rejected with ErrLessonBusy.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if err := o.ensureLesson(ctx, id); err != nil {
		return err
	}
	if !o.acquire(id, "delete") {
		if o.isClosing() {
			return ErrShuttingDown
		}
		return ErrLessonBusy
	}
	defer o.release(id)

	o.cleanupTemporary(id)
	if err := o.store.RemoveLesson(id); err != nil {
		return fmt.Errorf("remove lesson files: %w", err)
	}
	if err := o.tracker.Remove(id); err != nil {
		o.logger.Warn("status cleanup failed", "lesson_id", id, "error", err)
	}
	if err := o.records.Delete(ctx, id); err != nil && !errors.Is(err, lessons.ErrNotFound) {
		return fmt.Errorf("delete lesson record: %w", err)
	}
	o.logger.Info("lesson deleted", "lesson_id", id)
	return nil
}
