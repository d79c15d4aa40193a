package lessons

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when no lesson row matches the id.
var ErrNotFound = errors.New("lesson not found")

// Lesson is the metadata record of one uploaded recording.
type Lesson struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Tags           []string  `json:"tags"`
	Memo           string    `json:"memo"`
	TranscriptText string    `json:"transcript_text,omitempty"`
	SummaryText    string    `json:"summary_text,omitempty"`
	Chords         []string  `json:"chords"`
}

// Patch carries the user-editable fields; nil fields are left unchanged.
type Patch struct {
	Title *string   `json:"title,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
	Memo  *string   `json:"memo,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Tags == nil && p.Memo == nil
}

// NormalizeTags trims, de-duplicates and sorts tags, dropping empty ones.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SplitTags parses a comma separated tag list.
func SplitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return NormalizeTags(strings.Split(s, ","))
}
