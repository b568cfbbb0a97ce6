// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package world defines the boundary between the agent and the host
// application whose state it samples. A [Source] answers whether
// sampling is currently valid and returns raw observations; how the
// host obtains them is its own business.
//
// [Scenario] is a Source driven by recorded or hand-written frames,
// authored as JSONC files. The agent binary uses it as its host and
// the tests use it as a fake.
package world

import "github.com/xivforays/forays-agent/lib/tracking"

// Zone identifies where the local player is. A change of zone while
// eligible starts a new sampling session.
type Zone struct {
	TerritoryID uint32 `json:"territoryId"`
	MapID       uint32 `json:"mapId"`
}

// RawEnemy is one battle NPC as observed by the host, before any
// filtering or session bookkeeping.
type RawEnemy struct {
	// ObjectID is the host's per-spawn object identifier, stable for
	// the lifetime of the spawn.
	ObjectID uint64 `json:"objectId"`

	// DataID identifies the mob type.
	DataID uint32 `json:"dataId"`

	Name     string            `json:"name"`
	Level    uint8             `json:"level"`
	Position tracking.Position `json:"position"`

	// Hostile is false for friendly NPCs and other battle characters.
	Hostile bool `json:"hostile"`

	CurrentHP uint32 `json:"currentHp"`
	MaxHP     uint32 `json:"maxHp"`
	HasTarget bool   `json:"hasTarget"`

	// Element is the foray element index, or -1 when unknown.
	Element int `json:"element"`

	// Statuses lists active status effect names.
	Statuses []string `json:"statuses,omitempty"`
}

// FateState is the lifecycle state of a fate.
type FateState string

const (
	FatePreparing FateState = "preparing"
	FateRunning   FateState = "running"
	FateEnded     FateState = "ended"
	FateFailed    FateState = "failed"
)

// Finished reports whether the fate is over, successfully or not.
func (s FateState) Finished() bool {
	return s == FateEnded || s == FateFailed
}

// RawFate is one fate from the host's fate table.
type RawFate struct {
	FateID   uint32            `json:"fateId"`
	Name     string            `json:"name"`
	Position tracking.Position `json:"position"`
	Radius   float32           `json:"radius"`

	// StartTime is the unix time the fate started, zero if it has not.
	StartTime int64     `json:"startTime"`
	State     FateState `json:"state"`
	LevelID   uint32    `json:"levelId"`
}

// Source is the host's view of the world. Implementations must be safe
// to call from the scheduler's primary executor while the host is not
// mutating its state.
type Source interface {
	// Eligible reports whether the process is in a context that may be
	// sampled: logged in, inside a recordable territory, and on that
	// territory's map.
	Eligible() bool

	// Zone returns the current territory and map.
	Zone() Zone

	// Enemies returns every battle NPC currently visible.
	Enemies() ([]RawEnemy, error)

	// Fates returns the current fate table.
	Fates() ([]RawFate, error)
}
