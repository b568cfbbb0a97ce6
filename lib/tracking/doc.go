// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracking defines the sampled-entity model shared by every
// tracked kind and the change detector that decides which entities are
// worth re-reporting.
//
// An entity kind implements [Entity] on a value type. A [Snapshot] maps
// each entity's [Key] to its value; because entities are values, copying
// one out of a snapshot yields an independent record that later ticks
// cannot mutate. [Detect] compares two snapshots and returns the
// entities that are new, changed a status flag, or moved further than
// the squared distance threshold.
package tracking
