// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/xivforays/forays-agent/lib/clock"
	"github.com/xivforays/forays-agent/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, clk clock.Clock, primary *Primary) *Scheduler {
	t.Helper()
	s := New(Options{Clock: clk, Logger: discardLogger(), Primary: primary})
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestScheduleRunsImmediatelyThenEveryInterval(t *testing.T) {
	fake := clock.Fake(epoch)
	s := newTestScheduler(t, fake, nil)

	ticks := make(chan time.Time, 8)
	err := s.Schedule("upload", PlacementIndependent, 3*time.Second, func(ctx context.Context) error {
		ticks <- fake.Now()
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	first := testutil.RequireReceive(t, ticks, 5*time.Second, "first tick")
	if !first.Equal(epoch) {
		t.Fatalf("first tick at %v, want %v", first, epoch)
	}

	for i := 1; i <= 3; i++ {
		fake.WaitForTimers(1)
		fake.Advance(3 * time.Second)
		got := testutil.RequireReceive(t, ticks, 5*time.Second, "tick %d", i)
		if want := epoch.Add(time.Duration(i) * 3 * time.Second); !got.Equal(want) {
			t.Fatalf("tick %d at %v, want %v", i, got, want)
		}
	}
}

func TestScheduleDuplicateName(t *testing.T) {
	fake := clock.Fake(epoch)
	s := newTestScheduler(t, fake, nil)
	noop := func(context.Context) error { return nil }

	if err := s.Schedule("sample", PlacementIndependent, time.Second, noop); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}

	err := s.Schedule("sample", PlacementIndependent, time.Second, noop)
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("second Schedule error = %v, want ErrDuplicateTask", err)
	}
	var duplicate *DuplicateTaskError
	if !errors.As(err, &duplicate) || duplicate.Name != "sample" {
		t.Fatalf("error %v does not carry the duplicate name", err)
	}
	if got := s.Registered(); !slices.Equal(got, []TaskName{"sample"}) {
		t.Fatalf("Registered() = %v, want [sample]", got)
	}

	// Cancel frees the name immediately.
	s.Cancel("sample")
	if err := s.Schedule("sample", PlacementIndependent, time.Second, noop); err != nil {
		t.Fatalf("Schedule after Cancel: %v", err)
	}
}

func TestCancelUnknownTaskIsNoop(t *testing.T) {
	s := newTestScheduler(t, clock.Fake(epoch), nil)
	testutil.RequireClosed(t, s.Cancel("missing"), time.Second, "done channel for unknown task")
	if got := s.Registered(); len(got) != 0 {
		t.Fatalf("Registered() = %v, want empty", got)
	}
}

func TestCancelInterruptsIntervalWait(t *testing.T) {
	s := newTestScheduler(t, clock.Real(), nil)

	ran := make(chan struct{}, 4)
	err := s.Schedule("slow", PlacementIndependent, 3*time.Second, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	testutil.RequireReceive(t, ran, 5*time.Second, "first tick")

	// The loop is now inside its 3s wait. Cancel must end it well
	// before the interval elapses.
	testutil.RequireClosed(t, s.Cancel("slow"), time.Second, "loop exit after cancel")
	testutil.RequireNoReceive(t, ran, 50*time.Millisecond, "tick after cancel")
}

func TestFailingTicksDoNotStopTheLoop(t *testing.T) {
	fake := clock.Fake(epoch)
	failures := make(chan error, 4)
	s := New(Options{
		Clock:  fake,
		Logger: discardLogger(),
		OnTaskFailure: func(name TaskName, err error) {
			if name != "flaky" {
				t.Errorf("failure reported for %q", name)
			}
			failures <- err
		},
	})
	t.Cleanup(func() { s.Shutdown() })

	errBoom := errors.New("boom")
	calls := 0
	healthy := make(chan struct{}, 1)
	err := s.Schedule("flaky", PlacementIndependent, time.Second, func(context.Context) error {
		calls++
		switch calls {
		case 1:
			return errBoom
		case 2:
			panic("collector exploded")
		default:
			healthy <- struct{}{}
			return nil
		}
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if got := testutil.RequireReceive(t, failures, 5*time.Second, "error tick"); !errors.Is(got, errBoom) {
		t.Fatalf("first failure = %v, want %v", got, errBoom)
	}

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	got := testutil.RequireReceive(t, failures, 5*time.Second, "panic tick")
	var panicked *PanicError
	if !errors.As(got, &panicked) {
		t.Fatalf("second failure = %v, want *PanicError", got)
	}
	if panicked.Value != "collector exploded" || len(panicked.Stack) == 0 {
		t.Fatalf("panic error = %+v", panicked)
	}

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	testutil.RequireReceive(t, healthy, 5*time.Second, "third tick after panic")
}

func TestPrimaryTasksRunOnlyInRunPending(t *testing.T) {
	fake := clock.Fake(epoch)
	primary := NewPrimary()
	s := newTestScheduler(t, fake, primary)

	ran := make(chan struct{}, 4)
	err := s.Schedule("enemy-tick", PlacementPrimary, 5*time.Second, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	testutil.RequireReceive(t, primary.Ready(), 5*time.Second, "submission signal")
	testutil.RequireNoReceive(t, ran, 50*time.Millisecond, "primary task ran outside RunPending")

	if n := primary.RunPending(); n != 1 {
		t.Fatalf("RunPending() = %d, want 1", n)
	}
	testutil.RequireReceive(t, ran, time.Second, "primary task after RunPending")
}

func TestCancelWaitsForRunningPrimaryBody(t *testing.T) {
	primary := NewPrimary()
	s := newTestScheduler(t, clock.Fake(epoch), primary)

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	err := s.Schedule("enemy-tick", PlacementPrimary, 5*time.Second, func(context.Context) error {
		close(started)
		<-release
		close(finished)
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	testutil.RequireReceive(t, primary.Ready(), 5*time.Second, "submission signal")
	go primary.RunPending()
	testutil.RequireClosed(t, started, 5*time.Second, "body never started")

	done := s.Cancel("enemy-tick")
	testutil.RequireNoReceive(t, done, 50*time.Millisecond, "task reported done while its body was running")

	close(release)
	testutil.RequireClosed(t, done, 5*time.Second, "task loop did not exit after the body returned")
	select {
	case <-finished:
	default:
		t.Fatal("done closed before the body finished")
	}
}

func TestScheduleValidation(t *testing.T) {
	s := newTestScheduler(t, clock.Fake(epoch), nil)
	noop := func(context.Context) error { return nil }

	if err := s.Schedule("a", PlacementIndependent, 0, noop); err == nil {
		t.Fatal("zero interval accepted")
	}
	if err := s.Schedule("b", PlacementIndependent, time.Second, nil); err == nil {
		t.Fatal("nil body accepted")
	}
	if err := s.Schedule("c", PlacementPrimary, time.Second, noop); err == nil {
		t.Fatal("primary placement accepted without a Primary")
	}
	if got := s.Registered(); len(got) != 0 {
		t.Fatalf("rejected tasks were registered: %v", got)
	}
}

func TestShutdownWaitsForLoops(t *testing.T) {
	fake := clock.Fake(epoch)
	s := New(Options{Clock: fake, Logger: discardLogger()})

	ran := make(chan TaskName, 4)
	for _, name := range []TaskName{"a", "b"} {
		err := s.Schedule(name, PlacementIndependent, time.Minute, func(context.Context) error {
			ran <- name
			return nil
		})
		if err != nil {
			t.Fatalf("Schedule(%s): %v", name, err)
		}
	}
	testutil.RequireReceive(t, ran, 5*time.Second, "first task tick")
	testutil.RequireReceive(t, ran, 5*time.Second, "second task tick")

	if abandoned := s.Shutdown(); len(abandoned) != 0 {
		t.Fatalf("Shutdown abandoned %v", abandoned)
	}
	if got := s.Registered(); len(got) != 0 {
		t.Fatalf("Registered() after Shutdown = %v", got)
	}
}

func TestShutdownAbandonsStuckTask(t *testing.T) {
	fake := clock.Fake(epoch)
	s := New(Options{Clock: fake, Logger: discardLogger(), ShutdownTimeout: 5 * time.Second})

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	err := s.Schedule("stuck", PlacementIndependent, time.Second, func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	testutil.RequireClosed(t, started, 5*time.Second, "stuck body start")

	result := make(chan []TaskName, 1)
	go func() { result <- s.Shutdown() }()

	// The only armed timer is the shutdown deadline.
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	abandoned := testutil.RequireReceive(t, result, 5*time.Second, "Shutdown return")
	if !slices.Equal(abandoned, []TaskName{"stuck"}) {
		t.Fatalf("abandoned = %v, want [stuck]", abandoned)
	}
}

func TestScheduleAfterShutdown(t *testing.T) {
	s := New(Options{Clock: clock.Fake(epoch), Logger: discardLogger()})
	s.Shutdown()
	err := s.Schedule("late", PlacementIndependent, time.Second, func(context.Context) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Schedule after Shutdown = %v, want ErrClosed", err)
	}
}
