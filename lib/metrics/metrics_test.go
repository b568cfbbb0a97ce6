// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SampleTick("enemy", OutcomeSampled)
	m.Enqueued("enemy", ReasonChanged, 3)
	m.Overflow("enemy", 11)
	m.Upload("enemy", "ok", time.Second)
	m.ModuleEnabled("enemy", true)
}

func TestMetricsRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.Enqueued("enemy", ReasonChanged, 3)
	m.Enqueued("enemy", ReasonLiveness, 2)
	m.Overflow("enemy", 11)
	m.QueueDepth("enemy", 4)
	m.ModuleEnabled("fate", true)

	if got := testutil.ToFloat64(m.recordsEnqueued.WithLabelValues("enemy")); got != 5 {
		t.Fatalf("records enqueued = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.batchesDropped.WithLabelValues("enemy")); got != 11 {
		t.Fatalf("batches dropped = %v, want 11", got)
	}
	if got := testutil.ToFloat64(m.queueDepth.WithLabelValues("enemy")); got != 4 {
		t.Fatalf("queue depth = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.moduleEnabled.WithLabelValues("fate")); got != 1 {
		t.Fatalf("module enabled = %v, want 1", got)
	}
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := New(registry); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(registry); err == nil {
		t.Fatal("second New on the same registry succeeded")
	}
}
