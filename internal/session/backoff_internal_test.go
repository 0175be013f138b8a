package session

import (
	"context"
	"testing"
	"time"

	"cwc/internal/settings"
)

type alwaysActive struct{ active bool }

func (a alwaysActive) HasActiveViewer() bool { return a.active }

func TestBackoffImmediateOnFirstFailureWithActiveViewer(t *testing.T) {
	s := &Session{deps: Deps{Viewers: alwaysActive{active: true}}, wake: make(chan struct{})}

	start := time.Now()
	if !s.backoff(context.Background()) {
		t.Fatalf("backoff returned false unexpectedly")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected immediate retry, took %v", elapsed)
	}
}

func TestBackoffActiveTierAfterFirstFailure(t *testing.T) {
	s := &Session{deps: Deps{Viewers: alwaysActive{active: true}}, wake: make(chan struct{}), attempt: 1}

	ctx, cancel := context.WithTimeout(context.Background(), settings.BackoffActive+200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if !s.backoff(ctx) {
		t.Fatalf("backoff returned false unexpectedly")
	}
	if elapsed := time.Since(start); elapsed < settings.BackoffActive {
		t.Fatalf("expected at least %v wait, took %v", settings.BackoffActive, elapsed)
	}
}

func TestBackoffInterruptibleByWake(t *testing.T) {
	s := &Session{deps: Deps{Viewers: alwaysActive{active: false}}, wake: make(chan struct{}), attempt: 1}

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.interrupt()
	}()

	start := time.Now()
	if !s.backoff(context.Background()) {
		t.Fatalf("backoff returned false unexpectedly")
	}
	if elapsed := time.Since(start); elapsed >= settings.BackoffIdle {
		t.Fatalf("expected wake to preempt the idle tier, waited %v", elapsed)
	}
}

func TestBackoffCancelledByContext(t *testing.T) {
	s := &Session{deps: Deps{Viewers: alwaysActive{active: false}}, wake: make(chan struct{}), attempt: 1}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if s.backoff(ctx) {
		t.Fatalf("expected backoff to report cancellation")
	}
}
