package artifact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		label   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"01:05", 65, false},
		{"75:10", 4510, false},
		{" 3:09 ", 189, false},
		{"1:5", 0, true},
		{"01:60", 0, true},
		{"abc", 0, true},
		{"01:02:03", 0, true},
		{":30", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseTimestamp(tt.label)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00", FormatTimestamp(0))
	assert.Equal(t, "01:05", FormatTimestamp(65.9))
	assert.Equal(t, "75:10", FormatTimestamp(4510))
	assert.Equal(t, "00:00", FormatTimestamp(-3))
}

func TestSummaryDocument_Validate(t *testing.T) {
	assert.NoError(t, SummaryDocument{Summary: "ok", KeyPoints: []KeyPoint{{Point: "a", Timestamp: "02:30"}}}.Validate())
	assert.NoError(t, ErrorDocument("LLM unavailable").Validate())
	assert.Error(t, SummaryDocument{}.Validate())
	assert.Error(t, SummaryDocument{Summary: "ok", KeyPoints: []KeyPoint{{Point: "a", Timestamp: "2m30s"}}}.Validate())
}

func TestSummaryDocument_JSONShape(t *testing.T) {
	b, err := json.Marshal(ErrorDocument("No OpenAI API Key found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"No OpenAI API Key found"}`, string(b))
	assert.False(t, ErrorDocument("x").Usable())

	b, err = json.Marshal(SummaryDocument{Summary: "Practiced barre chords"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"Practiced barre chords","key_points":[],"chords":[]}`, string(b))
	assert.True(t, SummaryDocument{Summary: "x"}.Usable())
}

func TestPeakSeries_Validate(t *testing.T) {
	assert.NoError(t, PeakSeries{PointsPerSecond: 100}.Validate())
	assert.Error(t, PeakSeries{PointsPerSecond: 0}.Validate())
}
