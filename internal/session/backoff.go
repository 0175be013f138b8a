package session

import (
	"context"
	"time"

	"cwc/internal/settings"
)

// backoff waits according to the reconnect backoff tiers: immediate retry
// on the first consecutive failure while a viewer is active, 3s while
// active thereafter, 60s with no active viewer. The wait is interruptible
// by Reconfigure/Enable/Disable/Destroy (all of which close s.wake).
// Returns false if ctx was cancelled during the wait.
func (s *Session) backoff(ctx context.Context) bool {
	s.attempt++

	active := s.deps.Viewers != nil && s.deps.Viewers.HasActiveViewer()

	var delay time.Duration
	switch {
	case active && s.attempt == 1:
		delay = 0
	case active:
		delay = settings.BackoffActive
	default:
		delay = settings.BackoffIdle
	}

	if delay == 0 {
		return ctx.Err() == nil
	}

	s.mu.Lock()
	wake := s.wake
	s.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	case <-timer.C:
		return true
	}
}
