// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"sort"
	"time"
)

// Key identifies an entity within one sampling session.
type Key uint64

// Position is a point in world space.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// DistanceSquared returns the squared Euclidean distance between p and
// other, computed in float64.
func (p Position) DistanceSquared(other Position) float64 {
	dx := float64(p.X) - float64(other.X)
	dy := float64(p.Y) - float64(other.Y)
	dz := float64(p.Z) - float64(other.Z)
	return dx*dx + dy*dy + dz*dz
}

// Flags is a bitmask of boolean status attributes. Any differing bit
// between two observations of an entity is a significant change. Each
// kind assigns its own bit meanings.
type Flags uint16

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Kind names a sampled entity kind. It selects the upload endpoint and
// labels logs and metrics.
type Kind string

const (
	KindEnemy Kind = "enemy"
	KindFate  Kind = "fate"
)

// Entity is implemented by the value types that are sampled, diffed,
// and uploaded. Implementations must be plain values: assigning one
// must produce a copy that shares no mutable state with the original.
type Entity interface {
	TrackingKey() Key
	TrackingPosition() Position
	TrackingFlags() Flags
}

// Snapshot is one tick's view of a kind, keyed by entity identity.
type Snapshot[E Entity] map[Key]E

// SnapshotOf builds a snapshot from a sampled collection. If the
// collection repeats a key the later entry wins.
func SnapshotOf[E Entity](entities []E) Snapshot[E] {
	snapshot := make(Snapshot[E], len(entities))
	for _, entity := range entities {
		snapshot[entity.TrackingKey()] = entity
	}
	return snapshot
}

// Keys returns the snapshot's keys in ascending order.
func (s Snapshot[E]) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Batch is the unit moved through the upload queue: the records one
// sampler tick produced for one kind. A batch is never split or merged
// after creation.
type Batch[E Entity] struct {
	Kind      Kind
	Records   []E
	CreatedAt time.Time

	// Sequence is assigned by the producing sampler and increases by
	// one per batch within a process.
	Sequence uint64
}

// Len returns the number of records in the batch.
func (b Batch[E]) Len() int { return len(b.Records) }
