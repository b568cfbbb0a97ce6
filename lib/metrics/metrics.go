// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the agent's Prometheus collectors. Every
// recording method is safe on a nil *Metrics, so components take an
// optional *Metrics and tests pass nil.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forays"

// Sample tick outcomes.
const (
	OutcomeSampled    = "sampled"
	OutcomeIneligible = "ineligible"
	OutcomeFailed     = "failed"
)

// Batch reasons.
const (
	ReasonChanged  = "changed"
	ReasonLiveness = "liveness"
	ReasonRetry    = "retry"
)

// Metrics is the set of collectors one agent process exports.
type Metrics struct {
	sampleTicks     *prometheus.CounterVec
	sessionResets   *prometheus.CounterVec
	trackedEntities *prometheus.GaugeVec
	batchesEnqueued *prometheus.CounterVec
	recordsEnqueued *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	queueOverflows  *prometheus.CounterVec
	batchesDropped  *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	taskFailures    *prometheus.CounterVec
	moduleEnabled   *prometheus.GaugeVec
	configReloads   *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sampleTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "sampler", Name: "ticks_total", Help: "Sampler ticks by kind and outcome."},
			[]string{"kind", "outcome"},
		),
		sessionResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "sampler", Name: "session_resets_total", Help: "Sampling sessions started."},
			[]string{"kind"},
		),
		trackedEntities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "sampler", Name: "tracked_entities", Help: "Entities in the current snapshot."},
			[]string{"kind"},
		),
		batchesEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "queue", Name: "batches_enqueued_total", Help: "Batches appended to the upload queue."},
			[]string{"kind", "reason"},
		),
		recordsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "queue", Name: "records_enqueued_total", Help: "Records appended to the upload queue."},
			[]string{"kind"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "queue", Name: "depth", Help: "Batches waiting for upload."},
			[]string{"kind"},
		),
		queueOverflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "queue", Name: "overflows_total", Help: "Times the upload queue exceeded capacity and was cleared."},
			[]string{"kind"},
		),
		batchesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "queue", Name: "batches_dropped_total", Help: "Batches discarded by overflow clears."},
			[]string{"kind"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "upload", Name: "attempts_total", Help: "Upload attempts by kind and result."},
			[]string{"kind", "result"},
		),
		uploadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Subsystem: "upload", Name: "duration_seconds", Help: "Time spent in the remote sink per batch.", Buckets: prometheus.DefBuckets},
			[]string{"kind"},
		),
		taskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "scheduler", Name: "task_failures_total", Help: "Scheduled task ticks that returned an error or panicked."},
			[]string{"task"},
		),
		moduleEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "gatherer", Name: "enabled", Help: "1 while the kind's sampling and upload tasks are scheduled."},
			[]string{"kind"},
		),
		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "config", Name: "reloads_total", Help: "Configuration reloads by result."},
			[]string{"result"},
		),
	}

	for _, collector := range []prometheus.Collector{
		m.sampleTicks, m.sessionResets, m.trackedEntities,
		m.batchesEnqueued, m.recordsEnqueued, m.queueDepth, m.queueOverflows, m.batchesDropped,
		m.uploads, m.uploadDuration, m.taskFailures, m.moduleEnabled, m.configReloads,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) SampleTick(kind, outcome string) {
	if m == nil {
		return
	}
	m.sampleTicks.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SessionReset(kind string) {
	if m == nil {
		return
	}
	m.sessionResets.WithLabelValues(kind).Inc()
}

func (m *Metrics) Tracked(kind string, count int) {
	if m == nil {
		return
	}
	m.trackedEntities.WithLabelValues(kind).Set(float64(count))
}

// Enqueued records one batch of records entering the queue.
func (m *Metrics) Enqueued(kind, reason string, records int) {
	if m == nil {
		return
	}
	m.batchesEnqueued.WithLabelValues(kind, reason).Inc()
	m.recordsEnqueued.WithLabelValues(kind).Add(float64(records))
}

func (m *Metrics) QueueDepth(kind string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(kind).Set(float64(depth))
}

// Overflow records a queue clear that discarded dropped batches.
func (m *Metrics) Overflow(kind string, dropped int) {
	if m == nil {
		return
	}
	m.queueOverflows.WithLabelValues(kind).Inc()
	m.batchesDropped.WithLabelValues(kind).Add(float64(dropped))
}

// Upload records one sink call. result is "ok" or a failure class.
func (m *Metrics) Upload(kind, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind, result).Inc()
	m.uploadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) TaskFailure(task string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task).Inc()
}

func (m *Metrics) ModuleEnabled(kind string, enabled bool) {
	if m == nil {
		return
	}
	value := 0.0
	if enabled {
		value = 1
	}
	m.moduleEnabled.WithLabelValues(kind).Set(value)
}

// ConfigReload records a reload attempt; result is "applied" or
// "rejected".
func (m *Metrics) ConfigReload(result string) {
	if m == nil {
		return
	}
	m.configReloads.WithLabelValues(result).Inc()
}
