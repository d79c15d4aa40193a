// Package health runs periodic probes against external backends (the
// Whisper transcriber, the notation service, the tool executor) and tracks
// consecutive failures so callers can degrade gracefully.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Probe is anything that can report its own health.
type Probe interface {
	HealthCheck(ctx context.Context) (bool, error)
	Name() string
}

// ServiceStatus is the current health state of one probe.
type ServiceStatus struct {
	Name             string    `json:"name"`
	IsHealthy        bool      `json:"is_healthy"`
	LastCheckTime    time.Time `json:"last_check_time"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// HealthChecker periodically probes one backend. It starts optimistic and
// only reports unhealthy after failThreshold consecutive failures.
type HealthChecker struct {
	probe         Probe
	status        ServiceStatus
	mu            sync.RWMutex
	checkInterval time.Duration
	checkTimeout  time.Duration
	failThreshold int
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewHealthChecker creates a checker; call Start to begin probing.
func NewHealthChecker(probe Probe, checkInterval time.Duration, failThreshold int) *HealthChecker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &HealthChecker{
		probe:         probe,
		checkInterval: checkInterval,
		checkTimeout:  10 * time.Second,
		failThreshold: failThreshold,
		stopChan:      make(chan struct{}),
		status: ServiceStatus{
			Name:          probe.Name(),
			IsHealthy:     true,
			LastCheckTime: time.Now(),
		},
	}
}

// Start probes immediately and then every checkInterval until Stop is
// called or ctx is done. It blocks; run it in a goroutine.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.Check(ctx)

	for {
		select {
		case <-ticker.C:
			hc.Check(ctx)
		case <-hc.stopChan:
			slog.Info("health checker stopped", "probe", hc.probe.Name())
			return
		case <-ctx.Done():
			slog.Info("health checker context cancelled", "probe", hc.probe.Name())
			return
		}
	}
}

// Check runs a single probe and returns the updated status.
func (hc *HealthChecker) Check(ctx context.Context) ServiceStatus {
	checkCtx, cancel := context.WithTimeout(ctx, hc.checkTimeout)
	defer cancel()

	isHealthy, err := hc.probe.HealthCheck(checkCtx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.LastCheckTime = time.Now()

	if isHealthy {
		if !hc.status.IsHealthy {
			slog.Info("health check recovered", "probe", hc.probe.Name())
		}
		hc.status.IsHealthy = true
		hc.status.ConsecutiveFails = 0
		hc.status.ErrorMessage = ""
		return hc.status
	}

	hc.status.ConsecutiveFails++
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	hc.status.ErrorMessage = fmt.Sprintf("Health check failed: %s", errMsg)

	if hc.status.ConsecutiveFails >= hc.failThreshold {
		hc.status.IsHealthy = false
		slog.Error("health check failed, marking unhealthy",
			"probe", hc.probe.Name(), "consecutive_fails", hc.status.ConsecutiveFails, "error", errMsg)
	} else {
		slog.Warn("health check failed",
			"probe", hc.probe.Name(), "consecutive_fails", hc.status.ConsecutiveFails, "threshold", hc.failThreshold, "error", errMsg)
	}
	return hc.status
}

// GetStatus returns a copy of the current status.
func (hc *HealthChecker) GetStatus() ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.status
}

// Stop terminates Start. Safe to call more than once.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopChan) })
}
