package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestIntervalSchedulerRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(5 * time.Millisecond)
	ticks := make(chan time.Time, 64)
	ctx := context.Background()

	if err := s.Start(ctx, func(at time.Time) { ticks <- at }); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatalf("first run must fire immediately")
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("repeated Stop must be a no-op: %v", err)
	}
}

func TestIntervalSchedulerStopRacesTicker(t *testing.T) {
	t.Parallel()

	// Stop clears the channel field while the ticker goroutine is mid-loop;
	// repeated cycles shake out unsynchronized access to it.
	s := NewIntervalScheduler(time.Millisecond)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := s.Start(ctx, func(time.Time) {}); err != nil {
			t.Fatalf("Start error: %v", err)
		}
		if err := s.Stop(ctx); err != nil {
			t.Fatalf("Stop error: %v", err)
		}
	}
}

func TestIntervalSchedulerIgnoresMisconfiguration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	s := NewIntervalScheduler(0)
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("zero interval must be inert: %v", err)
	}
	if err := NewIntervalScheduler(time.Second).Start(ctx, nil); err != nil {
		t.Fatalf("nil job must be inert: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stopping an inert scheduler must be safe: %v", err)
	}
}
