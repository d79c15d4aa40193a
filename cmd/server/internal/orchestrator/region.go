package orchestrator

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/notation"
)

// TranscribeRegion returns ABC notation for [start, end] seconds of the
// accompaniment track. An empty region is a rest.
func (o *Orchestrator) TranscribeRegion(ctx context.Context, id string, start, end float64) (string, error) {
	for _, v := range []float64{start, end} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: start and end must be finite", ErrInvalidRegion)
		}
	}
	if err := o.ensureLesson(ctx, id); err != nil {
		return "", err
	}
	start = math.Max(start, 0)
	if end-start <= 0 {
		return notation.Rest, nil
	}
	if !o.store.Exists(id, artifact.Accompaniment) {
		return "", &MissingUpstreamArtifact{Stage: StageRegion, RunFirst: StageSeparate, Artifact: string(artifact.Accompaniment)}
	}
	src, err := o.store.Path(id, artifact.Accompaniment)
	if err != nil {
		return "", err
	}

	var abc string
	err = chunker.WithWorkDir(o.store.WorkRoot(id), "region", func(dir string) error {
		clip := filepath.Join(dir, "region.wav")
		if err := o.tool.CutRegion(ctx, src, start, end-start, clip); err != nil {
			return fmt.Errorf("cut region: %w", err)
		}
		var err error
		abc, err = o.notation.Transcribe(ctx, clip, start, end)
		return err
	})
	if err != nil {
		return "", classify(StageRegion, err)
	}
	return abc, nil
}
