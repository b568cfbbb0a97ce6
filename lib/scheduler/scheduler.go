// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xivforays/forays-agent/lib/clock"
)

// DefaultShutdownTimeout bounds how long Shutdown waits for loops to
// observe cancellation.
const DefaultShutdownTimeout = 5 * time.Second

// TaskName is the logical identity of a scheduled task.
type TaskName string

// Placement selects where a task body executes.
type Placement int

const (
	// PlacementPrimary runs the body on the shared Primary executor.
	PlacementPrimary Placement = iota

	// PlacementIndependent runs the body on the task's own goroutine.
	PlacementIndependent
)

// String returns the placement name used in logs.
func (p Placement) String() string {
	switch p {
	case PlacementPrimary:
		return "primary"
	case PlacementIndependent:
		return "independent"
	default:
		return fmt.Sprintf("placement(%d)", int(p))
	}
}

// Body is one tick of a task. The context is cancelled when the task
// is cancelled or the scheduler shuts down; long bodies should check
// it between units of work.
type Body func(ctx context.Context) error

// Options configures a Scheduler.
type Options struct {
	// Clock drives interval waits and the shutdown deadline. Required.
	Clock clock.Clock

	// Logger receives task lifecycle and failure messages. Required.
	Logger *slog.Logger

	// Primary executes PlacementPrimary tasks. Scheduling a primary
	// task without one is an error.
	Primary *Primary

	// ShutdownTimeout bounds Shutdown. Zero means
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// OnTaskFailure, if set, is called after each failed tick (error
	// or panic) with the task name and the failure.
	OnTaskFailure func(name TaskName, err error)
}

// Scheduler is a registry of named repeating tasks.
type Scheduler struct {
	clock           clock.Clock
	logger          *slog.Logger
	primary         *Primary
	shutdownTimeout time.Duration
	onTaskFailure   func(TaskName, error)

	mu     sync.Mutex
	tasks  map[TaskName]*task
	closed bool
}

type task struct {
	name      TaskName
	placement Placement
	interval  time.Duration
	body      Body
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Scheduler. Panics if Clock or Logger is nil.
func New(options Options) *Scheduler {
	if options.Clock == nil {
		panic("scheduler: Clock is required")
	}
	if options.Logger == nil {
		panic("scheduler: Logger is required")
	}
	timeout := options.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &Scheduler{
		clock:           options.Clock,
		logger:          options.Logger,
		primary:         options.Primary,
		shutdownTimeout: timeout,
		onTaskFailure:   options.OnTaskFailure,
		tasks:           make(map[TaskName]*task),
	}
}

// Schedule registers body under name and starts its loop. The first
// tick runs immediately; later ticks follow every interval.
//
// Returns a *DuplicateTaskError if name is already registered and
// ErrClosed after Shutdown.
func (s *Scheduler) Schedule(name TaskName, placement Placement, interval time.Duration, body Body) error {
	if body == nil {
		return fmt.Errorf("scheduler: task %q has no body", name)
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler: task %q has non-positive interval %v", name, interval)
	}
	switch placement {
	case PlacementPrimary:
		if s.primary == nil {
			return fmt.Errorf("scheduler: task %q needs a primary executor but none is configured", name)
		}
	case PlacementIndependent:
	default:
		return fmt.Errorf("scheduler: task %q has unknown placement %v", name, placement)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.tasks[name]; exists {
		return &DuplicateTaskError{Name: name}
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &task{
		name:      name,
		placement: placement,
		interval:  interval,
		body:      body,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.tasks[name] = entry

	go s.loop(ctx, entry)

	s.logger.Debug("task scheduled",
		"task", string(name),
		"placement", placement.String(),
		"interval", interval,
	)
	return nil
}

// Cancel signals the named task to stop and removes it from the
// registry, so the name may be scheduled again immediately. The
// returned channel is closed once the loop has exited. Cancelling an
// unknown name is a logged no-op and returns a closed channel.
func (s *Scheduler) Cancel(name TaskName) <-chan struct{} {
	s.mu.Lock()
	entry, exists := s.tasks[name]
	if exists {
		delete(s.tasks, name)
	}
	remaining := s.namesLocked()
	s.mu.Unlock()

	if !exists {
		s.logger.Debug("cancel requested for unknown task",
			"task", string(name),
			"registered", remaining,
		)
		closed := make(chan struct{})
		close(closed)
		return closed
	}

	entry.cancel()
	s.logger.Debug("task cancelled",
		"task", string(name),
		"registered", remaining,
	)
	return entry.done
}

// Registered returns the names of all registered tasks, sorted.
func (s *Scheduler) Registered() []TaskName {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked()
}

// Shutdown cancels every task and waits until their loops exit or the
// shutdown timeout expires. Returns the names of tasks abandoned
// because they were still running when the timeout expired. After
// Shutdown, Schedule returns ErrClosed.
func (s *Scheduler) Shutdown() []TaskName {
	s.mu.Lock()
	s.closed = true
	entries := make([]*task, 0, len(s.tasks))
	for _, entry := range s.tasks {
		entries = append(entries, entry)
	}
	s.tasks = make(map[TaskName]*task)
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	for _, entry := range entries {
		entry.cancel()
	}

	deadline := s.clock.NewTimer(s.shutdownTimeout)
	defer deadline.Stop()

	var abandoned []TaskName
	expired := false
	for _, entry := range entries {
		if expired {
			select {
			case <-entry.done:
			default:
				abandoned = append(abandoned, entry.name)
			}
			continue
		}
		select {
		case <-entry.done:
		case <-deadline.C:
			expired = true
			abandoned = append(abandoned, entry.name)
		}
	}

	if len(abandoned) > 0 {
		s.logger.Warn("shutdown timed out, abandoning tasks",
			"timeout", s.shutdownTimeout,
			"abandoned", abandoned,
		)
	} else {
		s.logger.Debug("scheduler shut down", "tasks", len(entries))
	}
	return abandoned
}

func (s *Scheduler) namesLocked() []TaskName {
	names := make([]TaskName, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// loop is the per-task goroutine: tick, then wait for the interval or
// cancellation.
func (s *Scheduler) loop(ctx context.Context, entry *task) {
	defer close(entry.done)

	for ctx.Err() == nil {
		if err := s.tick(ctx, entry); err != nil && ctx.Err() == nil {
			s.reportFailure(entry, err)
		}

		timer := s.clock.NewTimer(entry.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, entry *task) error {
	run := func() error { return entry.body(ctx) }
	if entry.placement == PlacementPrimary {
		return s.primary.Submit(ctx, run)
	}
	return runGuarded(run)
}

func (s *Scheduler) reportFailure(entry *task, err error) {
	var panicked *PanicError
	if errors.As(err, &panicked) {
		s.logger.Error("scheduled task panicked",
			"task", string(entry.name),
			"placement", entry.placement.String(),
			"panic", panicked.Value,
			"stack", string(panicked.Stack),
		)
	} else {
		s.logger.Error("scheduled task failed",
			"task", string(entry.name),
			"placement", entry.placement.String(),
			"error", err,
		)
	}
	if s.onTaskFailure != nil {
		s.onTaskFailure(entry.name, err)
	}
}
