package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter bounds concurrent executions per command with one
// semaphore each, sized by max_concurrent.
type ConcurrencyLimiter struct {
	semaphores     map[string]*semaphore.Weighted
	acquireTimeout time.Duration
}

// NewConcurrencyLimiter creates a semaphore for every configured command.
func NewConcurrencyLimiter(config *Config) *ConcurrencyLimiter {
	limiter := &ConcurrencyLimiter{
		semaphores:     make(map[string]*semaphore.Weighted, len(config.Commands)),
		acquireTimeout: config.AcquireTimeout(),
	}
	for _, cmd := range config.Commands {
		limiter.semaphores[cmd.Name] = semaphore.NewWeighted(int64(cmd.MaxConcurrent))
	}
	return limiter
}

// Acquire waits for a slot until ctx is done or the acquire timeout passes.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context, commandName string) error {
	sem, exists := l.semaphores[commandName]
	if !exists {
		return fmt.Errorf("no semaphore configured for command: %s", commandName)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	if err := sem.Acquire(timeoutCtx, 1); err != nil {
		return fmt.Errorf("failed to acquire semaphore for command %s: %w", commandName, err)
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (l *ConcurrencyLimiter) Release(commandName string) {
	if sem, exists := l.semaphores[commandName]; exists {
		sem.Release(1)
	}
}
