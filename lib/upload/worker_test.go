// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/xivforays/forays-agent/lib/clock"
	"github.com/xivforays/forays-agent/lib/tracking"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSink struct {
	errs  []error
	calls []tracking.Kind
	sent  [][]record
}

func (f *fakeSink) Send(ctx context.Context, kind tracking.Kind, records any) error {
	f.calls = append(f.calls, kind)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, records.([]record))
	}
	return err
}

func TestWorkerTickEmptyQueue(t *testing.T) {
	queue := NewQueue[record](10, discardLogger())
	sink := &fakeSink{}
	worker := NewWorker(queue, sink, clock.Fake(epoch), discardLogger(), nil)

	if err := worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(sink.calls) != 0 {
		t.Fatalf("sink called %d times on an empty queue", len(sink.calls))
	}
}

func TestWorkerSendsOneBatchPerTick(t *testing.T) {
	queue := NewQueue[record](10, discardLogger())
	queue.Enqueue(batchOf(1, 10, 11))
	queue.Enqueue(batchOf(2, 12))
	sink := &fakeSink{}
	worker := NewWorker(queue, sink, clock.Fake(epoch), discardLogger(), nil)

	if err := worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(sink.sent) != 1 || len(sink.sent[0]) != 2 {
		t.Fatalf("sent = %v, want one batch of 2", sink.sent)
	}
	if queue.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", queue.Len())
	}
	if status := worker.Status(); status.Sent != 1 || status.LastClass != ClassNone {
		t.Fatalf("status = %+v", status)
	}
}

func TestWorkerRequeuesFailedBatchAtTail(t *testing.T) {
	queue := NewQueue[record](10, discardLogger())
	queue.Enqueue(batchOf(1, 10))
	queue.Enqueue(batchOf(2, 20))
	sink := &fakeSink{errs: []error{fmt.Errorf("dial: %w", ErrTransport)}}
	worker := NewWorker(queue, sink, clock.Fake(epoch), discardLogger(), nil)

	if err := worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick returned the sink failure: %v", err)
	}
	if queue.Len() != 2 {
		t.Fatalf("queue length = %d after failure, want 2", queue.Len())
	}

	// Batch 2 is now ahead of the retried batch 1.
	for _, want := range []uint64{2, 1} {
		batch, ok := queue.TryDequeue()
		if !ok || batch.Sequence != want {
			t.Fatalf("dequeued %d (ok=%v), want %d", batch.Sequence, ok, want)
		}
	}

	status := worker.Status()
	if status.Failed != 1 || status.LastClass != ClassTransport || status.LastError == "" {
		t.Fatalf("status = %+v", status)
	}
}

func TestWorkerCredentialFailureStillRetries(t *testing.T) {
	queue := NewQueue[record](10, discardLogger())
	queue.Enqueue(batchOf(1, 10))
	sink := &fakeSink{errs: []error{&StatusError{StatusCode: http.StatusUnauthorized, Endpoint: "enemyposition"}}}
	worker := NewWorker(queue, sink, clock.Fake(epoch), discardLogger(), nil)

	worker.Tick(context.Background())
	if queue.Len() != 1 {
		t.Fatalf("queue length = %d, unauthorized batch was not requeued", queue.Len())
	}
	if got := worker.Status().LastClass; got != ClassUnauthorized {
		t.Fatalf("LastClass = %q, want unauthorized", got)
	}

	worker.Tick(context.Background())
	if queue.Len() != 0 || len(sink.sent) != 1 {
		t.Fatalf("retry did not deliver: queue %d, sent %d", queue.Len(), len(sink.sent))
	}
}

func TestWorkerRequeueRespectsOverflow(t *testing.T) {
	queue := NewQueue[record](2, discardLogger())
	queue.Enqueue(batchOf(1, 1))
	queue.Enqueue(batchOf(2, 2))
	sink := SinkFunc(func(ctx context.Context, kind tracking.Kind, records any) error {
		// A new batch arrives while the upload is in flight.
		queue.Enqueue(batchOf(3, 3))
		return ErrTransport
	})
	worker := NewWorker(queue, sink, clock.Fake(epoch), discardLogger(), nil)

	worker.Tick(context.Background())
	if queue.Len() != 0 || queue.Overflows() != 1 {
		t.Fatalf("Len() = %d, Overflows() = %d; requeue should have overflowed", queue.Len(), queue.Overflows())
	}
}

func TestWorkerCancelledContext(t *testing.T) {
	queue := NewQueue[record](10, discardLogger())
	queue.Enqueue(batchOf(1, 1))
	worker := NewWorker(queue, &fakeSink{}, clock.Fake(epoch), discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := worker.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Tick = %v, want context.Canceled", err)
	}
	if queue.Len() != 1 {
		t.Fatal("cancelled tick consumed a batch")
	}
}

func TestWorkerStatusUsesInjectedClock(t *testing.T) {
	fake := clock.Fake(epoch)
	queue := NewQueue[record](10, discardLogger())
	queue.Enqueue(batchOf(1, 10))
	sink := SinkFunc(func(context.Context, tracking.Kind, any) error {
		fake.Advance(250 * time.Millisecond)
		return nil
	})
	worker := NewWorker(queue, sink, fake, discardLogger(), nil)

	if err := worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	status := worker.Status()
	if want := epoch.Add(250 * time.Millisecond); !status.LastSent.Equal(want) {
		t.Fatalf("LastSent = %v, want %v", status.LastSent, want)
	}
	if status.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", status.Sent)
	}
}
