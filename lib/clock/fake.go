// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock whose time stands still at start until
// Advance is called.
func Fake(start time.Time) *FakeClock {
	clock := &FakeClock{now: start}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Timers and tickers
// fire only when Advance moves the clock past their deadline. Safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

// waiter is one armed timer or ticker.
type waiter struct {
	deadline time.Time
	channel  chan time.Time

	// period is non-zero for tickers, which re-arm after firing.
	period time.Duration

	done bool
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has advanced by
// d. Non-positive durations fire immediately without arming a waiter.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C
}

// NewTimer arms a one-shot timer d from now.
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return &Timer{C: channel, stop: func() bool { return false }}
	}

	armed := &waiter{deadline: c.now.Add(d), channel: channel}
	c.armLocked(armed)
	return &Timer{C: channel, stop: func() bool { return c.disarm(armed) }}
}

// NewTicker arms a ticker firing every d.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	armed := &waiter{deadline: c.now.Add(d), channel: channel, period: d}
	c.armLocked(armed)
	return &Ticker{C: channel, stop: func() { c.disarm(armed) }}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline has been reached, in deadline order. A ticker spanning
// several periods fires once per period; ticks that find the channel
// full are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now

	for {
		var due []*waiter
		for _, armed := range c.waiters {
			if !armed.done && !armed.deadline.After(target) {
				due = append(due, armed)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, armed := range due {
			select {
			case armed.channel <- target:
			default:
			}
			if armed.period > 0 {
				armed.deadline = armed.deadline.Add(armed.period)
			} else {
				armed.done = true
			}
		}
	}

	c.compactLocked()
	c.changed.Broadcast()
	c.mu.Unlock()
}

// WaitForTimers blocks until at least n timers or tickers are armed.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) armLocked(armed *waiter) {
	c.waiters = append(c.waiters, armed)
	c.changed.Broadcast()
}

func (c *FakeClock) disarm(armed *waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if armed.done {
		return false
	}
	armed.done = true
	c.compactLocked()
	c.changed.Broadcast()
	return true
}

// compactLocked drops fired and stopped waiters. Must hold c.mu.
func (c *FakeClock) compactLocked() {
	live := c.waiters[:0]
	for _, armed := range c.waiters {
		if !armed.done {
			live = append(live, armed)
		}
	}
	for i := len(live); i < len(c.waiters); i++ {
		c.waiters[i] = nil
	}
	c.waiters = live
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, armed := range c.waiters {
		if !armed.done {
			count++
		}
	}
	return count
}
