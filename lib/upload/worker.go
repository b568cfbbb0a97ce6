// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xivforays/forays-agent/lib/clock"
	"github.com/xivforays/forays-agent/lib/metrics"
	"github.com/xivforays/forays-agent/lib/tracking"
)

// Worker drains a Queue into a Sink, one batch per Tick.
type Worker[E tracking.Entity] struct {
	queue   *Queue[E]
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   clock.Clock

	mu     sync.Mutex
	status WorkerStatus
}

// WorkerStatus summarizes the worker's recent activity.
type WorkerStatus struct {
	Sent      uint64
	Failed    uint64
	LastClass Class
	LastError string
	LastSent  time.Time
}

// NewWorker creates a worker. The clock stamps LastSent and times
// each Send. m may be nil.
func NewWorker[E tracking.Entity](queue *Queue[E], sink Sink, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Worker[E] {
	return &Worker[E]{
		queue:   queue,
		sink:    sink,
		logger:  logger,
		metrics: m,
		clock:   clk,
	}
}

// Tick sends the head batch, if any. A failed batch is re-enqueued at
// the tail, subject to the queue's overflow policy, and the failure is
// logged. Sink failures are handled here and never returned; Tick only
// returns an error if ctx was already done.
func (w *Worker[E]) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch, ok := w.queue.TryDequeue()
	if !ok {
		return nil
	}

	kind := string(batch.Kind)
	start := w.clock.Now()
	err := w.sink.Send(ctx, batch.Kind, batch.Records)
	elapsed := w.clock.Now().Sub(start)

	if err == nil {
		w.metrics.Upload(kind, "ok", elapsed)
		w.mu.Lock()
		w.status.Sent++
		w.status.LastClass = ClassNone
		w.status.LastError = ""
		w.status.LastSent = w.clock.Now()
		w.mu.Unlock()
		w.logger.Debug("batch uploaded",
			"kind", kind,
			"sequence", batch.Sequence,
			"records", batch.Len(),
			"elapsed", elapsed,
		)
		return nil
	}

	class := Classify(err)
	w.metrics.Upload(kind, string(class), elapsed)
	length := w.queue.Enqueue(batch)
	if length > 0 {
		w.metrics.Enqueued(kind, metrics.ReasonRetry, batch.Len())
	}

	w.mu.Lock()
	w.status.Failed++
	w.status.LastClass = class
	w.status.LastError = err.Error()
	w.mu.Unlock()

	if class.Credential() {
		w.logger.Error("upload rejected, API key is not accepted",
			"kind", kind,
			"class", string(class),
			"sequence", batch.Sequence,
			"records", batch.Len(),
			"queued", length,
			"error", err,
		)
	} else {
		w.logger.Warn("upload failed, batch requeued",
			"kind", kind,
			"sequence", batch.Sequence,
			"records", batch.Len(),
			"queued", length,
			"error", err,
		)
	}
	return nil
}

// Status returns a copy of the worker's counters.
func (w *Worker[E]) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}
