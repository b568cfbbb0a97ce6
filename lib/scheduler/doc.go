// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs named repeating tasks for the agent.
//
// Every task is registered under a [TaskName] chosen by the caller.
// The name is the task's identity: scheduling a name that is already
// registered fails with a [DuplicateTaskError], and cancelling a name
// removes it so that it can be scheduled again.
//
// A task runs on one of two placements:
//
//   - [PlacementPrimary]: the body is handed to the shared [Primary]
//     executor and runs when the host calls [Primary.RunPending] from
//     its own frame loop. All primary tasks are therefore serialized
//     with each other and with the host's own per-frame work. Primary
//     bodies must be short and must not block on I/O.
//   - [PlacementIndependent]: the body runs on the task's own
//     goroutine. Network I/O belongs here.
//
// Each task loop invokes the body immediately, then waits for the
// interval or for cancellation, whichever comes first. A body that
// returns an error or panics is logged and the loop carries on with
// the next interval; one bad tick never ends a loop.
//
// [Scheduler.Shutdown] cancels everything and waits for loops to exit,
// bounded by Options.ShutdownTimeout. Loops still running a body when
// the timeout expires are abandoned and reported back to the caller.
package scheduler
