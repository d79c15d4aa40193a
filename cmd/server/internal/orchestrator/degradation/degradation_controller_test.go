package degradation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/whisper"
)

type fakeTranscriber struct {
	name    string
	healthy bool
	mu      sync.RWMutex
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, options *whisper.TranscribeOptions) (*whisper.TranscriptionResult, error) {
	return &whisper.TranscriptionResult{
		Text:     "transcribed by " + f.name,
		Segments: []whisper.TranscriptionSegment{},
	}, nil
}

func (f *fakeTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.healthy, nil
}

func (f *fakeTranscriber) Name() string { return f.name }

func (f *fakeTranscriber) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

func newController(primaryHealthy bool) (*DegradationController, *fakeTranscriber, *health.HealthChecker) {
	primary := &fakeTranscriber{name: "primary", healthy: primaryHealthy}
	fallback := &fakeTranscriber{name: "fallback", healthy: true}
	hc := health.NewHealthChecker(primary, time.Hour, 1)
	return NewDegradationController(primary, fallback, hc), primary, hc
}

func TestDegradationController_InitialPrimary(t *testing.T) {
	controller, _, _ := newController(false)

	assert.Equal(t, "primary", controller.GetTranscriber().Name())
	assert.False(t, controller.IsDegraded())
}

func TestDegradationController_DegradeAndRecover(t *testing.T) {
	controller, primary, hc := newController(false)
	ctx := context.Background()

	for cycle := 0; cycle < 2; cycle++ {
		primary.SetHealthy(false)
		hc.Check(ctx)
		assert.Equal(t, "fallback", controller.GetTranscriber().Name(), "cycle %d", cycle)
		assert.True(t, controller.IsDegraded())

		healthy, err := controller.HealthCheck(ctx)
		require.NoError(t, err)
		assert.False(t, healthy)

		primary.SetHealthy(true)
		hc.Check(ctx)
		assert.Equal(t, "primary", controller.GetTranscriber().Name(), "cycle %d", cycle)
		assert.False(t, controller.IsDegraded())
	}
}

func TestDegradationController_TranscribeDelegates(t *testing.T) {
	controller, primary, hc := newController(true)
	ctx := context.Background()

	result, err := controller.Transcribe(ctx, "/lessons/x/vocals.mp3", nil)
	require.NoError(t, err)
	assert.Equal(t, "transcribed by primary", result.Text)
	assert.Equal(t, "primary", controller.Name())

	primary.SetHealthy(false)
	hc.Check(ctx)

	result, err = controller.Transcribe(ctx, "/lessons/x/vocals.mp3", nil)
	require.NoError(t, err)
	assert.Equal(t, "transcribed by fallback", result.Text)
	assert.Equal(t, "fallback", controller.Name())
}

func TestDegradationController_WithRunningChecker(t *testing.T) {
	primary := &fakeTranscriber{name: "primary", healthy: false}
	fallback := &fakeTranscriber{name: "fallback", healthy: true}
	hc := health.NewHealthChecker(primary, 10*time.Millisecond, 1)
	controller := NewDegradationController(primary, fallback, hc)

	go hc.Start(context.Background())
	defer hc.Stop()

	require.Eventually(t, func() bool {
		return controller.GetTranscriber().Name() == "fallback"
	}, time.Second, 5*time.Millisecond)
}
