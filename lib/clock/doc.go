// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that periodic
// loops can be tested without sleeping.
//
// Production code holds a Clock field and is constructed with Real().
// Tests construct it with Fake(start) and drive time explicitly:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	scheduler := scheduler.New(scheduler.Options{Clock: fakeClock, ...})
//	// ... schedule a task ...
//	fakeClock.WaitForTimers(1)          // the loop is parked on its interval
//	fakeClock.Advance(5 * time.Second)  // release it deterministically
//
// WaitForTimers closes the race between a goroutine arming a timer and
// the test advancing the clock past it. Stopped timers no longer count
// as pending, so a loop that re-arms a fresh timer each iteration is
// observed as exactly one pending timer while it waits.
package clock
