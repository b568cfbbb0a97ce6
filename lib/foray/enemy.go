// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package foray

import (
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/xivforays/forays-agent/lib/sampler"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/world"
)

// Enemy status flags.
const (
	FlagAdapted tracking.Flags = 1 << iota
	FlagMutated
	FlagInCombat
	FlagHasBeenInCombat
)

// Status effect names that set FlagAdapted and FlagMutated.
const (
	StatusAdaptation = "Adaptation"
	StatusMutation   = "Mutation"
)

// Enemy is the position and state of one hostile mob.
type Enemy struct {
	// ObjectID keys the snapshot. It is only meaningful inside one
	// client session and is not uploaded.
	ObjectID uint64 `json:"-"`

	MobIngameID     uint32    `json:"mobIngameId"`
	MobName         string    `json:"mobName"`
	Level           uint8     `json:"level"`
	X               float32   `json:"x"`
	Y               float32   `json:"y"`
	Z               float32   `json:"z"`
	IsAdapted       bool      `json:"isAdapted"`
	IsMutated       bool      `json:"isMutated"`
	TimeStamp       int64     `json:"timeStamp"`
	Element         string    `json:"element"`
	IsInCombat      bool      `json:"isInCombat"`
	HasBeenInCombat bool      `json:"hasBeenInCombat"`
	TerritoryID     uint32    `json:"territoryId"`
	MapID           uint32    `json:"mapId"`
	InstanceID      uuid.UUID `json:"instanceId"`
}

func (e Enemy) TrackingKey() tracking.Key { return tracking.Key(e.ObjectID) }

func (e Enemy) TrackingPosition() tracking.Position {
	return tracking.Position{X: e.X, Y: e.Y, Z: e.Z}
}

func (e Enemy) TrackingFlags() tracking.Flags {
	var flags tracking.Flags
	if e.IsAdapted {
		flags |= FlagAdapted
	}
	if e.IsMutated {
		flags |= FlagMutated
	}
	if e.IsInCombat {
		flags |= FlagInCombat
	}
	if e.HasBeenInCombat {
		flags |= FlagHasBeenInCombat
	}
	return flags
}

// EnemyCollector builds Enemy records from the host's battle NPCs and
// remembers, for the current session, every NPC it has seen in combat.
// Not safe for concurrent use; the sampler serializes calls.
type EnemyCollector struct {
	logger        *slog.Logger
	combatHistory map[uint64]struct{}
}

// NewEnemyCollector creates a collector with empty combat history.
func NewEnemyCollector(logger *slog.Logger) *EnemyCollector {
	return &EnemyCollector{logger: logger, combatHistory: make(map[uint64]struct{})}
}

// Collect returns one Enemy per living hostile NPC. An NPC is in combat
// when it has a target or is below full health; once seen in combat
// it stays marked for the rest of the session.
func (c *EnemyCollector) Collect(source world.Source, session sampler.Session, now time.Time) ([]Enemy, error) {
	raws, err := source.Enemies()
	if err != nil {
		return nil, err
	}

	enemies := make([]Enemy, 0, len(raws))
	for _, raw := range raws {
		if !raw.Hostile || raw.CurrentHP == 0 {
			continue
		}

		inCombat := raw.HasTarget || raw.CurrentHP < raw.MaxHP
		if inCombat {
			if _, seen := c.combatHistory[raw.ObjectID]; !seen {
				c.combatHistory[raw.ObjectID] = struct{}{}
				c.logger.Debug("enemy observed in combat for the first time",
					"name", raw.Name,
					"object_id", raw.ObjectID,
				)
			}
		}
		_, hasBeenInCombat := c.combatHistory[raw.ObjectID]

		enemies = append(enemies, Enemy{
			ObjectID:        raw.ObjectID,
			MobIngameID:     raw.DataID,
			MobName:         raw.Name,
			Level:           raw.Level,
			X:               raw.Position.X,
			Y:               raw.Position.Y,
			Z:               raw.Position.Z,
			IsAdapted:       slices.Contains(raw.Statuses, StatusAdaptation),
			IsMutated:       slices.Contains(raw.Statuses, StatusMutation),
			TimeStamp:       now.Unix(),
			Element:         strconv.Itoa(raw.Element),
			IsInCombat:      inCombat,
			HasBeenInCombat: hasBeenInCombat,
			TerritoryID:     session.Zone.TerritoryID,
			MapID:           session.Zone.MapID,
			InstanceID:      session.InstanceID,
		})
	}
	return enemies, nil
}

// AlwaysReport re-sends every enemy that has been in combat this
// session, so kill and pull locations stay current.
func (c *EnemyCollector) AlwaysReport(enemy Enemy) bool {
	return enemy.HasBeenInCombat
}

// Reset forgets the combat history.
func (c *EnemyCollector) Reset() {
	clear(c.combatHistory)
}

// CombatHistory returns the number of NPCs seen in combat this
// session.
func (c *EnemyCollector) CombatHistory() int {
	return len(c.combatHistory)
}
