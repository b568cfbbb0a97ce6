// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"log/slog"
	"sync"

	"github.com/xivforays/forays-agent/lib/metrics"
	"github.com/xivforays/forays-agent/lib/tracking"
)

// DefaultCapacity is the number of pending batches a queue holds
// before an enqueue clears it.
const DefaultCapacity = 10

// Queue is a bounded FIFO of batches. Safe for concurrent use.
type Queue[E tracking.Entity] struct {
	logger   *slog.Logger
	capacity int

	metrics *metrics.Metrics
	kind    string

	mu        sync.Mutex
	batches   []tracking.Batch[E]
	overflows uint64
	dropped   uint64
}

// NewQueue creates an empty queue. A non-positive capacity means
// DefaultCapacity.
func NewQueue[E tracking.Entity](capacity int, logger *slog.Logger) *Queue[E] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[E]{logger: logger, capacity: capacity}
}

// SetMetrics attaches collectors labelled with kind. Call before the
// queue is shared.
func (q *Queue[E]) SetMetrics(m *metrics.Metrics, kind tracking.Kind) {
	q.metrics = m
	q.kind = string(kind)
}

// Capacity returns the configured bound.
func (q *Queue[E]) Capacity() int { return q.capacity }

// Enqueue appends batch to the tail. If the queue then holds more than
// its capacity, every pending batch (including this one) is discarded.
// Returns the length after the operation.
func (q *Queue[E]) Enqueue(batch tracking.Batch[E]) int {
	q.mu.Lock()
	q.batches = append(q.batches, batch)
	length := len(q.batches)
	dropped := 0
	if length > q.capacity {
		dropped = length
		clear(q.batches)
		q.batches = q.batches[:0]
		q.overflows++
		q.dropped += uint64(dropped)
		length = 0
	}
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warn("upload queue overflowed, dropping all pending batches",
			"kind", string(batch.Kind),
			"capacity", q.capacity,
			"dropped", dropped,
		)
		q.metrics.Overflow(q.kind, dropped)
	}
	q.metrics.QueueDepth(q.kind, length)
	return length
}

// TryDequeue removes and returns the head batch. The boolean is false
// when the queue is empty.
func (q *Queue[E]) TryDequeue() (tracking.Batch[E], bool) {
	q.mu.Lock()
	if len(q.batches) == 0 {
		q.mu.Unlock()
		return tracking.Batch[E]{}, false
	}
	head := q.batches[0]
	var zero tracking.Batch[E]
	q.batches[0] = zero
	q.batches = q.batches[1:]
	length := len(q.batches)
	q.mu.Unlock()

	q.metrics.QueueDepth(q.kind, length)
	return head, true
}

// Len returns the number of pending batches.
func (q *Queue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Overflows returns how many times the queue has been cleared.
func (q *Queue[E]) Overflows() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflows
}

// Dropped returns the total number of batches discarded by overflow
// clears.
func (q *Queue[E]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards every pending batch without counting an overflow.
func (q *Queue[E]) Clear() int {
	q.mu.Lock()
	length := len(q.batches)
	clear(q.batches)
	q.batches = q.batches[:0]
	q.mu.Unlock()

	q.metrics.QueueDepth(q.kind, 0)
	return length
}
