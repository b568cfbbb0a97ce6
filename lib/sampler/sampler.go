// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampler turns periodic reads of a [world.Source] into
// batches of significant changes.
//
// A [Sampler] owns the previous snapshot and the session for one
// entity kind. Its Tick is meant to run on the scheduler's primary
// executor: it reads the world synchronously, diffs against the last
// snapshot, and enqueues without blocking. A new session (eligibility
// regained, or the zone changed) starts from an empty snapshot, so
// every entity present at the start of a session is reported once.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xivforays/forays-agent/lib/clock"
	"github.com/xivforays/forays-agent/lib/metrics"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/world"
)

// Session identifies one continuous period of eligible sampling in one
// zone. Records carry InstanceID so the collector can group them.
type Session struct {
	InstanceID uuid.UUID
	Zone       world.Zone
	StartedAt  time.Time
}

// Collector reads one entity kind from the world and converts it into
// tracked records. A collector may keep per-session history; Reset
// discards it.
type Collector[E tracking.Entity] interface {
	// Collect returns the entities currently present. It must not
	// block on I/O.
	Collect(source world.Source, session Session, now time.Time) ([]E, error)

	// AlwaysReport reports whether entity is re-sent every tick
	// regardless of change.
	AlwaysReport(entity E) bool

	// Reset clears per-session history.
	Reset()
}

// Enqueuer accepts batches for upload. *upload.Queue satisfies it.
type Enqueuer[E tracking.Entity] interface {
	Enqueue(batch tracking.Batch[E]) int
}

// Config configures a Sampler.
type Config[E tracking.Entity] struct {
	Kind      tracking.Kind
	Source    world.Source
	Collector Collector[E]
	Queue     Enqueuer[E]
	Detector  tracking.Detector
	Clock     clock.Clock
	Logger    *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// NewSessionID generates session instance ids. Defaults to
	// uuid.New.
	NewSessionID func() uuid.UUID
}

// Outcome describes what a tick did.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeSampled    Outcome = Outcome(metrics.OutcomeSampled)
	OutcomeIneligible Outcome = Outcome(metrics.OutcomeIneligible)
	OutcomeFailed     Outcome = Outcome(metrics.OutcomeFailed)
)

// TickReport summarizes the most recent tick.
type TickReport struct {
	At       time.Time
	Outcome  Outcome
	Changed  int
	Liveness int
	Tracked  int
}

// Status is a point-in-time view of a sampler.
type Status struct {
	Eligible bool

	// Session is nil until the first eligible tick.
	Session *Session

	Tracked  int
	LastTick TickReport
}

// Sampler is the per-kind sampling state machine.
type Sampler[E tracking.Entity] struct {
	config Config[E]
	kind   string

	mu       sync.Mutex
	eligible bool
	session  *Session
	previous tracking.Snapshot[E]
	sequence uint64
	last     TickReport
}

// New creates a Sampler. Panics if a required field is missing.
func New[E tracking.Entity](config Config[E]) *Sampler[E] {
	switch {
	case config.Source == nil:
		panic("sampler: Source is required")
	case config.Collector == nil:
		panic("sampler: Collector is required")
	case config.Queue == nil:
		panic("sampler: Queue is required")
	case config.Clock == nil:
		panic("sampler: Clock is required")
	case config.Logger == nil:
		panic("sampler: Logger is required")
	}
	if config.NewSessionID == nil {
		config.NewSessionID = uuid.New
	}
	return &Sampler[E]{config: config, kind: string(config.Kind)}
}

// Tick samples once. If the source is ineligible nothing changes
// except the remembered eligibility. A failed read returns an error
// and leaves the previous snapshot in place, so the next tick compares
// against the same baseline.
func (s *Sampler[E]) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.Clock.Now()
	source := s.config.Source

	if !source.Eligible() {
		if s.eligible {
			s.config.Logger.Info("sampling paused, context is not recordable", "kind", s.kind)
		}
		s.eligible = false
		s.record(TickReport{At: now, Outcome: OutcomeIneligible, Tracked: len(s.previous)})
		return nil
	}

	zone := source.Zone()
	if !s.eligible || s.session == nil || s.session.Zone != zone {
		s.startSessionLocked(zone, now)
	}
	s.eligible = true

	entities, err := s.config.Collector.Collect(source, *s.session, now)
	if err != nil {
		s.record(TickReport{At: now, Outcome: OutcomeFailed, Tracked: len(s.previous)})
		return fmt.Errorf("sampling %s: %w", s.kind, err)
	}
	current := tracking.SnapshotOf(entities)

	report := TickReport{At: now, Outcome: OutcomeSampled, Tracked: len(current)}

	// An empty previous snapshot makes every current entity new.
	changed := tracking.DetectWith(s.config.Detector, s.previous, current)
	if len(changed) > 0 {
		s.enqueueLocked(changed, now, metrics.ReasonChanged)
		report.Changed = len(changed)
	}

	var liveness []E
	for _, key := range current.Keys() {
		if entity := current[key]; s.config.Collector.AlwaysReport(entity) {
			liveness = append(liveness, entity)
		}
	}
	if len(liveness) > 0 {
		s.enqueueLocked(liveness, now, metrics.ReasonLiveness)
		report.Liveness = len(liveness)
	}

	s.previous = current
	s.record(report)
	return nil
}

// Reset forgets the session, the previous snapshot, and the
// collector's history. The next eligible tick starts a new session.
func (s *Sampler[E]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eligible = false
	s.session = nil
	s.previous = nil
	s.config.Collector.Reset()
	s.config.Metrics.Tracked(s.kind, 0)
}

// Status returns a snapshot of the sampler's state.
func (s *Sampler[E]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		Eligible: s.eligible,
		Tracked:  len(s.previous),
		LastTick: s.last,
	}
	if s.session != nil {
		session := *s.session
		status.Session = &session
	}
	return status
}

func (s *Sampler[E]) startSessionLocked(zone world.Zone, now time.Time) {
	session := &Session{
		InstanceID: s.config.NewSessionID(),
		Zone:       zone,
		StartedAt:  now,
	}
	s.session = session
	s.previous = nil
	s.config.Collector.Reset()
	s.config.Metrics.SessionReset(s.kind)
	s.config.Logger.Info("sampling session started",
		"kind", s.kind,
		"instance_id", session.InstanceID.String(),
		"territory_id", zone.TerritoryID,
		"map_id", zone.MapID,
	)
}

// enqueueLocked copies records into a new batch. Records are values,
// so the batch shares nothing with the snapshot.
func (s *Sampler[E]) enqueueLocked(records []E, now time.Time, reason string) {
	s.sequence++
	batch := tracking.Batch[E]{
		Kind:      s.config.Kind,
		Records:   append([]E(nil), records...),
		CreatedAt: now,
		Sequence:  s.sequence,
	}
	s.config.Queue.Enqueue(batch)
	s.config.Metrics.Enqueued(s.kind, reason, len(records))
	s.config.Logger.Debug("batch enqueued",
		"kind", s.kind,
		"reason", reason,
		"sequence", batch.Sequence,
		"records", len(records),
	)
}

func (s *Sampler[E]) record(report TickReport) {
	s.last = report
	s.config.Metrics.SampleTick(s.kind, string(report.Outcome))
	if report.Outcome == OutcomeSampled {
		s.config.Metrics.Tracked(s.kind, report.Tracked)
	}
}
