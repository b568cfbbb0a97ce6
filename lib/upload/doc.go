// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload moves batches of changed records from the sampler to
// a remote [Sink].
//
// [Queue] is a bounded FIFO shared between one producer (the sampler,
// on the primary executor) and one consumer (the [Worker], on its own
// loop). Every operation is a single critical section. When an enqueue
// pushes the length past capacity the whole queue is cleared: an agent
// that cannot reach the network for a long time keeps a bounded
// footprint, and the drop is logged and counted rather than silent.
//
// The Worker sends at most one batch per tick. A failed batch goes
// back to the tail of the queue and waits for the next tick, so the
// tick interval is the retry backoff.
package upload
