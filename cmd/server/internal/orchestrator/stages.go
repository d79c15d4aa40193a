package orchestrator

import "fmt"

// Stage names one unit of pipeline work.
type Stage string

const (
	StageNormalize  Stage = "normalize"
	StageSeparate   Stage = "separate"
	StagePeaks      Stage = "peaks"
	StageTranscribe Stage = "transcribe"
	StageSummarize  Stage = "summarize"

	// StageRegion is the on-demand melodic transcription of a region.
	StageRegion Stage = "region"
)

// RerunStages are the stages that can be re-run individually.
var RerunStages = []Stage{StageSeparate, StageTranscribe, StageSummarize, StagePeaks}

// ParseRerunStage validates a stage name coming from a client.
func ParseRerunStage(name string) (Stage, error) {
	for _, s := range RerunStages {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// pipeline steps of a fresh upload with the progress reported when each starts
var pipelineSteps = []struct {
	stage    Stage
	progress float64
	message  string
}{
	{StageNormalize, 0.05, "Normalizing input audio"},
	{StageSeparate, 0.15, "Separating audio (chunked)"},
	{StagePeaks, 0.60, "Generating waveform peaks"},
	{StageTranscribe, 0.70, "Transcribing vocals"},
	{StageSummarize, 0.90, "Summarizing lesson"},
}

const (
	completeMessage = "Processing complete"
	rerunProgress   = 0.1
)
