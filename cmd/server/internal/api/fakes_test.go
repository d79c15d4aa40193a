package api

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/status"
	"github.com/houzhh15/refret/pkg/logger"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	mu sync.Mutex

	submitted  []orchestrator.Upload
	uploadBody string
	submitErr  error

	statuses   map[string]status.Record
	artifacts  map[string][]artifact.Name
	stale      map[string][]artifact.Name
	busy       map[string]string
	audio      map[string]string
	transcript artifact.Transcript
	summary    artifact.SummaryDocument
	peaks      artifact.PeakSeries
	abc        string

	err      error // returned by every per-lesson call when set
	reruns   []string
	deleted  []string
	regionAt [2]float64
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		statuses:  map[string]status.Record{},
		artifacts: map[string][]artifact.Name{},
		stale:     map[string][]artifact.Name{},
		busy:      map[string]string{},
		audio:     map[string]string{},
	}
}

func (f *fakePipeline) Submit(_ context.Context, up orchestrator.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	body, err := io.ReadAll(up.Body)
	if err != nil {
		return "", err
	}
	f.uploadBody = string(body)
	f.submitted = append(f.submitted, up)
	return "lesson-1", nil
}

func (f *fakePipeline) Status(_ context.Context, id string) (status.Record, error) {
	if f.err != nil {
		return status.Record{}, f.err
	}
	rec, ok := f.statuses[id]
	if !ok {
		return status.Record{Status: status.Unknown}, nil
	}
	return rec, nil
}

func (f *fakePipeline) Artifacts(id string) []artifact.Name { return f.artifacts[id] }

func (f *fakePipeline) Stale(id string) []artifact.Name { return f.stale[id] }

func (f *fakePipeline) Rerun(_ context.Context, id, stage string) error {
	if f.err != nil {
		return f.err
	}
	if _, err := orchestrator.ParseRerunStage(stage); err != nil {
		return err
	}
	f.reruns = append(f.reruns, id+"/"+stage)
	return nil
}

func (f *fakePipeline) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePipeline) Busy(id string) (string, bool) {
	a, ok := f.busy[id]
	return a, ok
}

func (f *fakePipeline) AudioPath(_ context.Context, id, track string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	p, ok := f.audio[id+"/"+track]
	if !ok {
		return "", artifact.ErrNotFound
	}
	return p, nil
}

func (f *fakePipeline) Transcript(context.Context, string) (artifact.Transcript, error) {
	return f.transcript, f.err
}

func (f *fakePipeline) Summary(context.Context, string) (artifact.SummaryDocument, error) {
	return f.summary, f.err
}

func (f *fakePipeline) Peaks(context.Context, string, string) (artifact.PeakSeries, error) {
	return f.peaks, f.err
}

func (f *fakePipeline) TranscribeRegion(_ context.Context, _ string, start, end float64) (string, error) {
	f.regionAt = [2]float64{start, end}
	return f.abc, f.err
}

// fakeCatalog is an in-memory LessonCatalog.
type fakeCatalog struct {
	lessons map[string]lessons.Lesson
	err     error
}

func (f *fakeCatalog) Get(_ context.Context, id string) (lessons.Lesson, error) {
	if f.err != nil {
		return lessons.Lesson{}, f.err
	}
	l, ok := f.lessons[id]
	if !ok {
		return lessons.Lesson{}, lessons.ErrNotFound
	}
	return l, nil
}

func (f *fakeCatalog) List(context.Context) ([]lessons.Lesson, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []lessons.Lesson
	for _, l := range f.lessons {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, p lessons.Patch) (lessons.Lesson, error) {
	l, ok := f.lessons[id]
	if !ok {
		return lessons.Lesson{}, lessons.ErrNotFound
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Tags != nil {
		l.Tags = lessons.NormalizeTags(*p.Tags)
	}
	if p.Memo != nil {
		l.Memo = *p.Memo
	}
	f.lessons[id] = l
	return l, nil
}

func (f *fakeCatalog) Tags(context.Context) ([]string, error) {
	var all []string
	for _, l := range f.lessons {
		all = append(all, l.Tags...)
	}
	return lessons.NormalizeTags(all), nil
}

func newTestRouter(t *testing.T, p Pipeline, cat LessonCatalog, hd HealthDeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_, err := logger.Init(logger.Config{Level: "debug", Environment: "test"})
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, NewLessonHandler(p, cat, 0), hd)
	return r
}
