// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
)

// Primary is the serialized execution context shared by every
// PlacementPrimary task. Work submitted to it runs only inside
// RunPending, which the host calls from its own frame loop; the host
// never observes a primary task running concurrently with its own
// frame.
//
// Hosts without a frame loop can call Run in a goroutine instead.
type Primary struct {
	mu      sync.Mutex
	pending []*primaryJob

	// running serializes RunPending callers.
	running sync.Mutex

	ready chan struct{}
}

// primaryJob state is guarded by Primary.mu. A job is either claimed
// by RunPending or abandoned by its submitter, never both.
type primaryJob struct {
	fn        func() error
	result    chan error
	claimed   bool
	abandoned bool
}

// NewPrimary creates an idle Primary.
func NewPrimary() *Primary {
	return &Primary{ready: make(chan struct{}, 1)}
}

// Submit queues fn for the next RunPending and waits for it to finish.
// If ctx is cancelled before RunPending starts the job, the job is
// abandoned and Submit returns ctx.Err(). Once the job has started,
// Submit waits for it and returns its result, so a cancelled caller
// never returns while fn is still running.
func (p *Primary) Submit(ctx context.Context, fn func() error) error {
	job := &primaryJob{fn: fn, result: make(chan error, 1)}

	p.mu.Lock()
	p.pending = append(p.pending, job)
	p.mu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
	}

	p.mu.Lock()
	claimed := job.claimed
	if !claimed {
		job.abandoned = true
	}
	p.mu.Unlock()
	if !claimed {
		return ctx.Err()
	}
	return <-job.result
}

// RunPending runs every job queued so far, one at a time, on the
// calling goroutine. Returns the number of jobs that ran. Jobs queued
// while RunPending is running wait for the next call.
func (p *Primary) RunPending() int {
	p.running.Lock()
	defer p.running.Unlock()

	p.mu.Lock()
	jobs := p.pending
	p.pending = nil
	p.mu.Unlock()

	ran := 0
	for _, job := range jobs {
		p.mu.Lock()
		abandoned := job.abandoned
		job.claimed = !abandoned
		p.mu.Unlock()
		if abandoned {
			continue
		}
		job.result <- runGuarded(job.fn)
		ran++
	}
	return ran
}

// Pending returns the number of queued jobs.
func (p *Primary) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Ready receives a signal (coalesced) whenever work is submitted.
// Hosts may select on it to avoid polling RunPending.
func (p *Primary) Ready() <-chan struct{} {
	return p.ready
}

// Run drains submitted work until ctx is cancelled.
func (p *Primary) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ready:
			p.RunPending()
		}
	}
}

func runGuarded(fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered, Stack: debug.Stack()}
		}
	}()
	return fn()
}
