// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package gatherer wires one entity kind's sampler and upload worker
// onto the scheduler and toggles them with the enabled signal.
//
// A [Module] registers two tasks while enabled:
//
//	<kind>-sample   primary placement, every SampleInterval
//	<kind>-upload   independent placement, every UploadInterval
//
// Both are registered or neither is. Enabling builds a fresh sampler
// and collector, so every enable starts a new session; the upload
// queue belongs to the module and keeps pending batches across a
// disable.
package gatherer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xivforays/forays-agent/lib/clock"
	"github.com/xivforays/forays-agent/lib/config"
	"github.com/xivforays/forays-agent/lib/metrics"
	"github.com/xivforays/forays-agent/lib/sampler"
	"github.com/xivforays/forays-agent/lib/scheduler"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/upload"
	"github.com/xivforays/forays-agent/lib/world"
)

// ErrClosed is returned by SetEnabled and LoadConfig after Close.
var ErrClosed = errors.New("gatherer: module is closed")

// Settings are the tunables of one module.
type Settings struct {
	SampleInterval time.Duration
	UploadInterval time.Duration
	QueueCapacity  int
	Detector       tracking.Detector
}

// SettingsFrom converts a kind's configuration section.
func SettingsFrom(kind config.KindConfig) Settings {
	return Settings{
		SampleInterval: kind.SampleInterval,
		UploadInterval: kind.UploadInterval,
		QueueCapacity:  kind.QueueCapacity,
		Detector:       tracking.ThresholdFromDistance(kind.MovementThreshold),
	}
}

// Options configures a Module.
type Options[E tracking.Entity] struct {
	Kind      tracking.Kind
	Scheduler *scheduler.Scheduler
	Source    world.Source
	Sink      upload.Sink

	// NewCollector is called on every enable.
	NewCollector func() sampler.Collector[E]

	Settings Settings
	Clock    clock.Clock
	Logger   *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Status is a point-in-time view of a module.
type Status struct {
	Kind    tracking.Kind
	Enabled bool

	// Sampler is the zero value while disabled.
	Sampler sampler.Status

	QueueDepth int
	Overflows  uint64
	Dropped    uint64

	// Upload reports the most recent worker, which survives a disable.
	Upload upload.WorkerStatus
}

// Module is the enable/disable lifecycle for one entity kind.
type Module[E tracking.Entity] struct {
	kind         tracking.Kind
	scheduler    *scheduler.Scheduler
	source       world.Source
	sink         upload.Sink
	newCollector func() sampler.Collector[E]
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *metrics.Metrics

	sampleTask scheduler.TaskName
	uploadTask scheduler.TaskName

	mu       sync.Mutex
	settings Settings
	queue    *upload.Queue[E]
	enabled  bool
	closed   bool
	sampler  *sampler.Sampler[E]
	worker   *upload.Worker[E]

	// stopped holds the done channels of the last cancelled tasks.
	stopped []<-chan struct{}
}

// New creates a disabled Module. Panics if a required option is
// missing; returns an error if the settings are invalid.
func New[E tracking.Entity](options Options[E]) (*Module[E], error) {
	switch {
	case options.Kind == "":
		panic("gatherer: Kind is required")
	case options.Scheduler == nil:
		panic("gatherer: Scheduler is required")
	case options.Source == nil:
		panic("gatherer: Source is required")
	case options.Sink == nil:
		panic("gatherer: Sink is required")
	case options.NewCollector == nil:
		panic("gatherer: NewCollector is required")
	case options.Clock == nil:
		panic("gatherer: Clock is required")
	case options.Logger == nil:
		panic("gatherer: Logger is required")
	}
	if err := options.Settings.validate(); err != nil {
		return nil, fmt.Errorf("gatherer %s: %w", options.Kind, err)
	}

	logger := options.Logger.With("kind", string(options.Kind))
	module := &Module[E]{
		kind:         options.Kind,
		scheduler:    options.Scheduler,
		source:       options.Source,
		sink:         options.Sink,
		newCollector: options.NewCollector,
		clock:        options.Clock,
		logger:       logger,
		metrics:      options.Metrics,
		sampleTask:   scheduler.TaskName(string(options.Kind) + "-sample"),
		uploadTask:   scheduler.TaskName(string(options.Kind) + "-upload"),
		settings:     options.Settings,
		queue:        upload.NewQueue[E](options.Settings.QueueCapacity, logger),
	}
	module.queue.SetMetrics(options.Metrics, options.Kind)
	module.metrics.ModuleEnabled(string(options.Kind), false)
	return module, nil
}

func (s Settings) validate() error {
	var errs []error
	if s.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sample interval must be positive, got %s", s.SampleInterval))
	}
	if s.UploadInterval <= 0 {
		errs = append(errs, fmt.Errorf("upload interval must be positive, got %s", s.UploadInterval))
	}
	if s.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue capacity must be positive, got %d", s.QueueCapacity))
	}
	return errors.Join(errs...)
}

// Kind returns the module's entity kind.
func (m *Module[E]) Kind() tracking.Kind { return m.kind }

// TaskNames returns the names of the sample and upload tasks.
func (m *Module[E]) TaskNames() (sample, upload scheduler.TaskName) {
	return m.sampleTask, m.uploadTask
}

// SetEnabled applies the enabled signal. Enabling an enabled module or
// disabling a disabled one does nothing. If either task cannot be
// registered, neither stays registered and the module stays disabled.
func (m *Module[E]) SetEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if enabled == m.enabled {
		return nil
	}
	if enabled {
		return m.enableLocked()
	}
	m.disableLocked()
	return nil
}

// LoadConfig applies a configuration: new settings first, then the
// enabled signal. Changed intervals or threshold restart the tasks of
// an enabled module, which starts a new session. A changed capacity
// moves pending batches into a queue of the new size.
func (m *Module[E]) LoadConfig(cfg *config.Config) error {
	kindConfig, ok := cfg.Kind(string(m.kind))
	if !ok {
		return fmt.Errorf("gatherer: no configuration section for kind %q", m.kind)
	}
	settings := SettingsFrom(kindConfig)
	if err := settings.validate(); err != nil {
		return fmt.Errorf("gatherer %s: %w", m.kind, err)
	}
	enabled := cfg.Enabled(string(m.kind))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if settings != m.settings {
		wasEnabled := m.enabled
		if wasEnabled {
			m.disableLocked()
		}
		if settings.QueueCapacity != m.settings.QueueCapacity {
			m.resizeQueueLocked(settings.QueueCapacity)
		}
		m.settings = settings
		m.logger.Info("gatherer settings changed",
			"sample_interval", settings.SampleInterval,
			"upload_interval", settings.UploadInterval,
			"queue_capacity", settings.QueueCapacity,
			"threshold_squared", settings.Detector.ThresholdSquared,
		)
		if wasEnabled && !enabled {
			return nil
		}
		if wasEnabled {
			return m.enableLocked()
		}
	}

	if enabled == m.enabled {
		return nil
	}
	if enabled {
		return m.enableLocked()
	}
	m.disableLocked()
	return nil
}

// Status returns a snapshot of the module.
func (m *Module[E]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := Status{
		Kind:       m.kind,
		Enabled:    m.enabled,
		QueueDepth: m.queue.Len(),
		Overflows:  m.queue.Overflows(),
		Dropped:    m.queue.Dropped(),
	}
	if m.sampler != nil {
		status.Sampler = m.sampler.Status()
	}
	if m.worker != nil {
		status.Upload = m.worker.Status()
	}
	return status
}

// Close disables the module, waits for its task loops to exit, and
// rejects further changes.
func (m *Module[E]) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if m.enabled {
		m.disableLocked()
	}
	m.closed = true
	stopped := m.stopped
	m.stopped = nil
	m.mu.Unlock()

	for _, done := range stopped {
		<-done
	}
	m.logger.Debug("gatherer closed")
	return nil
}

func (m *Module[E]) enableLocked() error {
	collector := m.newCollector()
	sample := sampler.New(sampler.Config[E]{
		Kind:      m.kind,
		Source:    m.source,
		Collector: collector,
		Queue:     m.queue,
		Detector:  m.settings.Detector,
		Clock:     m.clock,
		Logger:    m.logger,
		Metrics:   m.metrics,
	})
	worker := upload.NewWorker(m.queue, m.sink, m.clock, m.logger, m.metrics)

	if err := m.scheduler.Schedule(m.sampleTask, scheduler.PlacementPrimary, m.settings.SampleInterval, sample.Tick); err != nil {
		return fmt.Errorf("enabling %s: %w", m.kind, err)
	}
	if err := m.scheduler.Schedule(m.uploadTask, scheduler.PlacementIndependent, m.settings.UploadInterval, worker.Tick); err != nil {
		m.stopped = append(m.stopped, m.scheduler.Cancel(m.sampleTask))
		return fmt.Errorf("enabling %s: %w", m.kind, err)
	}

	m.sampler = sample
	m.worker = worker
	m.enabled = true
	m.metrics.ModuleEnabled(string(m.kind), true)
	m.logger.Info("gatherer enabled",
		"sample_task", string(m.sampleTask),
		"upload_task", string(m.uploadTask),
	)
	return nil
}

func (m *Module[E]) disableLocked() {
	m.stopped = append(pruneClosed(m.stopped),
		m.scheduler.Cancel(m.sampleTask),
		m.scheduler.Cancel(m.uploadTask),
	)
	m.sampler = nil
	m.enabled = false
	m.metrics.ModuleEnabled(string(m.kind), false)
	m.logger.Info("gatherer disabled", "pending_batches", m.queue.Len())
}

// resizeQueueLocked moves pending batches, oldest first, into a new
// queue of the given capacity. The new queue's overflow rule applies.
// Only called while the tasks are cancelled; it waits for their loops
// to exit so no worker still holds the old queue.
func (m *Module[E]) resizeQueueLocked(capacity int) {
	for _, done := range m.stopped {
		<-done
	}
	m.stopped = nil

	resized := upload.NewQueue[E](capacity, m.logger)
	resized.SetMetrics(m.metrics, m.kind)
	for {
		batch, ok := m.queue.TryDequeue()
		if !ok {
			break
		}
		resized.Enqueue(batch)
	}
	m.queue = resized
}

// pruneClosed drops done channels whose loops have already exited.
func pruneClosed(channels []<-chan struct{}) []<-chan struct{} {
	var open []<-chan struct{}
	for _, done := range channels {
		select {
		case <-done:
		default:
			open = append(open, done)
		}
	}
	return open
}
