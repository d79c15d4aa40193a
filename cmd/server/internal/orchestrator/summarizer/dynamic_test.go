package summarizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamic_RebuildsOnlyWhenSettingsChange(t *testing.T) {
	cfg := Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-1"}
	model := &fakeModel{content: `{"summary":"ok","key_points":[],"chords":[]}`}
	var built []Config

	d := NewDynamic(func(context.Context) (Config, error) { return cfg, nil })
	d.build = func(c Config) (*Summarizer, error) {
		built = append(built, c)
		return NewWithModel(model, c), nil
	}

	for i := 0; i < 2; i++ {
		doc, err := d.Summarize(context.Background(), lessonSegments)
		require.NoError(t, err)
		assert.Equal(t, "ok", doc.Summary)
	}
	require.Len(t, built, 1)
	assert.Equal(t, "gpt-4o-mini", built[0].Model)
	assert.NotEmpty(t, built[0].SystemPrompt, "defaults applied before building")

	cfg.SystemPrompt = "Summarize in English."
	_, err := d.Summarize(context.Background(), lessonSegments)
	require.NoError(t, err)
	require.Len(t, built, 2)
	assert.Equal(t, "Summarize in English.", built[1].SystemPrompt)
	assert.Equal(t, 3, model.calls)
}

func TestDynamic_MissingKeyYieldsErrorDocument(t *testing.T) {
	d := NewDynamic(func(context.Context) (Config, error) {
		return Config{Provider: ProviderOpenAI}, nil
	})

	doc, err := d.Summarize(context.Background(), lessonSegments)
	require.NoError(t, err)
	assert.Equal(t, MissingKeyMessage, doc.Error)
}

func TestDynamic_Errors(t *testing.T) {
	t.Run("resolver", func(t *testing.T) {
		d := NewDynamic(func(context.Context) (Config, error) { return Config{}, errors.New("database is locked") })
		_, err := d.Summarize(context.Background(), lessonSegments)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is locked")
	})

	t.Run("provider", func(t *testing.T) {
		d := NewDynamic(func(context.Context) (Config, error) { return Config{Provider: "bard"}, nil })
		_, err := d.Summarize(context.Background(), lessonSegments)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported llm provider "bard"`)
	})
}
