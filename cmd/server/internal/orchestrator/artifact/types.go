package artifact

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TranscriptSegment is one recognized utterance, times in seconds.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the plain text and the timed segments of one lesson.
type Transcript struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
}

// JoinSegmentText renders one segment per line.
func JoinSegmentText(segments []TranscriptSegment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		lines = append(lines, strings.TrimSpace(s.Text))
	}
	return strings.Join(lines, "\n")
}

// KeyPoint is a notable moment of the lesson with an MM:SS label.
type KeyPoint struct {
	Point     string `json:"point"`
	Timestamp string `json:"timestamp"`
}

// Seconds parses the MM:SS label. Minutes may exceed 59.
func (k KeyPoint) Seconds() (int, error) {
	return ParseTimestamp(k.Timestamp)
}

// ParseTimestamp parses an MM:SS label into seconds.
func ParseTimestamp(label string) (int, error) {
	mm, ss, ok := strings.Cut(strings.TrimSpace(label), ":")
	if !ok || mm == "" || len(ss) != 2 {
		return 0, fmt.Errorf("timestamp %q is not MM:SS", label)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("timestamp %q has invalid minutes", label)
	}
	s, err := strconv.Atoi(ss)
	if err != nil || s < 0 || s > 59 {
		return 0, fmt.Errorf("timestamp %q has invalid seconds", label)
	}
	return m*60 + s, nil
}

// FormatTimestamp renders seconds as MM:SS, truncating fractions.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// SummaryDocument is the LLM summary of a lesson. A failed summarization
// is stored as a document carrying only Error.
type SummaryDocument struct {
	Summary   string     `json:"summary"`
	KeyPoints []KeyPoint `json:"key_points"`
	Chords    []string   `json:"chords"`
	Error     string     `json:"error,omitempty"`
}

// ErrorDocument builds a summary document describing a failure.
func ErrorDocument(msg string) SummaryDocument {
	return SummaryDocument{Error: msg}
}

// Usable reports whether the document holds a real summary.
func (d SummaryDocument) Usable() bool {
	return d.Error == ""
}

// Validate checks the invariants every persisted document must hold.
func (d SummaryDocument) Validate() error {
	if d.Error == "" && strings.TrimSpace(d.Summary) == "" {
		return fmt.Errorf("summary document has neither summary nor error")
	}
	for i, kp := range d.KeyPoints {
		if _, err := kp.Seconds(); err != nil {
			return fmt.Errorf("key point %d: %w", i, err)
		}
	}
	return nil
}

// MarshalJSON writes error documents as {"error": ...} only.
func (d SummaryDocument) MarshalJSON() ([]byte, error) {
	if d.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{d.Error})
	}
	type plain SummaryDocument
	p := plain(d)
	if p.KeyPoints == nil {
		p.KeyPoints = []KeyPoint{}
	}
	if p.Chords == nil {
		p.Chords = []string{}
	}
	return json.Marshal(p)
}

// PeakSeries is the waveform overview of a track.
type PeakSeries struct {
	Data            []float64 `json:"data"`
	PointsPerSecond int       `json:"points_per_second"`
}

// Validate checks the sampling rate.
func (p PeakSeries) Validate() error {
	if p.PointsPerSecond <= 0 {
		return fmt.Errorf("points_per_second must be positive, got %d", p.PointsPerSecond)
	}
	return nil
}
