// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xivforays/forays-agent/lib/tracking"
)

type record struct {
	key tracking.Key
}

func (r record) TrackingKey() tracking.Key           { return r.key }
func (r record) TrackingPosition() tracking.Position { return tracking.Position{} }
func (r record) TrackingFlags() tracking.Flags       { return 0 }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batchOf(sequence uint64, keys ...tracking.Key) tracking.Batch[record] {
	records := make([]record, len(keys))
	for i, key := range keys {
		records[i] = record{key: key}
	}
	return tracking.Batch[record]{Kind: tracking.KindEnemy, Records: records, Sequence: sequence}
}

func TestQueueFIFO(t *testing.T) {
	queue := NewQueue[record](10, discardLogger())
	for i := uint64(1); i <= 3; i++ {
		if got := queue.Enqueue(batchOf(i, tracking.Key(i))); got != int(i) {
			t.Fatalf("Enqueue %d returned length %d", i, got)
		}
	}
	for want := uint64(1); want <= 3; want++ {
		batch, ok := queue.TryDequeue()
		if !ok {
			t.Fatalf("TryDequeue %d: empty", want)
		}
		if batch.Sequence != want {
			t.Fatalf("dequeued sequence %d, want %d", batch.Sequence, want)
		}
	}
	if _, ok := queue.TryDequeue(); ok {
		t.Fatal("TryDequeue on an empty queue returned a batch")
	}
}

func TestQueueOverflowClearsEverything(t *testing.T) {
	queue := NewQueue[record](10, discardLogger())
	for i := uint64(1); i <= 10; i++ {
		queue.Enqueue(batchOf(i, 1))
	}
	if queue.Len() != 10 {
		t.Fatalf("Len() = %d at capacity, want 10", queue.Len())
	}

	if got := queue.Enqueue(batchOf(11, 1)); got != 0 {
		t.Fatalf("11th Enqueue returned length %d, want 0", got)
	}
	if queue.Len() != 0 {
		t.Fatalf("Len() = %d after overflow, want 0", queue.Len())
	}
	if queue.Overflows() != 1 || queue.Dropped() != 11 {
		t.Fatalf("Overflows() = %d, Dropped() = %d; want 1, 11", queue.Overflows(), queue.Dropped())
	}

	// The queue is usable again after a clear.
	queue.Enqueue(batchOf(12, 1))
	if batch, ok := queue.TryDequeue(); !ok || batch.Sequence != 12 {
		t.Fatalf("after overflow: TryDequeue() = %v, %v", batch.Sequence, ok)
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	if got := NewQueue[record](0, discardLogger()).Capacity(); got != DefaultCapacity {
		t.Fatalf("Capacity() = %d, want %d", got, DefaultCapacity)
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	queue := NewQueue[record](1000, discardLogger())
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= total; i++ {
			queue.Enqueue(batchOf(i, 1))
		}
	}()

	var last uint64
	received := 0
	for received < total {
		batch, ok := queue.TryDequeue()
		if !ok {
			continue
		}
		if batch.Sequence <= last {
			t.Fatalf("sequence %d after %d", batch.Sequence, last)
		}
		last = batch.Sequence
		received++
	}
	wg.Wait()
}
