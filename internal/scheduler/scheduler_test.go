package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"avatarbackend/internal/apperr"
)

func TestScheduler_RunsSubmittedTasks(t *testing.T) {
	s := New(2, 8)
	ctx, cancel := context.WithCancel(context.Background())

	var count int32
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		task := func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		}
		if err := s.Submit(ctx, task); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&count) < 5 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for tasks to run, got %d/5", atomic.LoadInt32(&count))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestScheduler_SubmitFailsWithQueueFullWhenQueueIsFull(t *testing.T) {
	s := New(0, 1)
	ctx := context.Background()

	// Fill the single-slot queue; no workers are running to drain it.
	if err := s.Submit(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected first submit into an empty queue to succeed, got %v", err)
	}

	err := s.Submit(ctx, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected an error submitting to a full queue")
	}
	if !apperr.Is(err, apperr.KindQueueFull) {
		t.Fatalf("expected a QueueFull error, got %v", err)
	}
}

func TestScheduler_SubmitDoesNotBlockWhenQueueIsFull(t *testing.T) {
	s := New(0, 1)
	ctx := context.Background()
	_ = s.Submit(ctx, func(context.Context) error { return nil })

	done := make(chan struct{})
	go func() {
		_ = s.Submit(ctx, func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked instead of failing fast on a full queue")
	}
}

func TestScheduler_QueueDepthReflectsPendingTasks(t *testing.T) {
	s := New(1, 4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = s.Submit(ctx, func(context.Context) error { return nil })
	}
	if depth := s.QueueDepth(); depth != 3 {
		t.Fatalf("expected queue depth 3, got %d", depth)
	}
}
