package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	var runs atomic.Int64
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, 20*time.Millisecond, 0)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 2 runs, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSchedulerStop(t *testing.T) {
	var runs atomic.Int64
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, 10*time.Millisecond, 0)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for runs.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("Expected the first run to happen")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() > after+1 {
		t.Errorf("Expected no further runs after Stop, got %d extra", runs.Load()-after)
	}
}

func TestSchedulerAppliesTimeout(t *testing.T) {
	timedOut := make(chan struct{}, 1)
	s := New(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if ok && time.Until(deadline) <= 25*time.Millisecond {
			select {
			case timedOut <- struct{}{}:
			default:
			}
		}
		return nil
	}, time.Hour, 25*time.Millisecond)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the pass context to carry the configured timeout")
	}
}
