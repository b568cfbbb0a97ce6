// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package foray

import (
	"time"

	"github.com/google/uuid"

	"github.com/xivforays/forays-agent/lib/sampler"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/world"
)

// Fate status flags.
const (
	FlagRunning tracking.Flags = 1 << iota
	FlagEnded
	FlagFailed
)

// Fate is one started fate.
type Fate struct {
	FateID      uint32          `json:"fateId"`
	Name        string          `json:"name"`
	X           float32         `json:"x"`
	Y           float32         `json:"y"`
	Z           float32         `json:"z"`
	Radius      float32         `json:"radius"`
	StartedAt   int64           `json:"startedAt"`
	EndedAt     int64           `json:"endedAt"`
	State       world.FateState `json:"state"`
	InstanceID  uuid.UUID       `json:"instanceId"`
	TerritoryID uint32          `json:"territoryId"`
	MapID       uint32          `json:"mapId"`
	LevelID     uint32          `json:"levelId"`
}

func (f Fate) TrackingKey() tracking.Key { return tracking.Key(f.FateID) }

func (f Fate) TrackingPosition() tracking.Position {
	return tracking.Position{X: f.X, Y: f.Y, Z: f.Z}
}

func (f Fate) TrackingFlags() tracking.Flags {
	switch f.State {
	case world.FateRunning:
		return FlagRunning
	case world.FateEnded:
		return FlagEnded
	case world.FateFailed:
		return FlagFailed
	default:
		return 0
	}
}

// FateCollector builds Fate records and stamps the end time of each
// fate the first tick it is seen finished.
type FateCollector struct {
	endedAt map[uint32]int64
}

func NewFateCollector() *FateCollector {
	return &FateCollector{endedAt: make(map[uint32]int64)}
}

// Collect returns every fate that has started and has a position.
func (c *FateCollector) Collect(source world.Source, session sampler.Session, now time.Time) ([]Fate, error) {
	raws, err := source.Fates()
	if err != nil {
		return nil, err
	}

	fates := make([]Fate, 0, len(raws))
	for _, raw := range raws {
		if raw.StartTime == 0 || raw.Position == (tracking.Position{}) {
			continue
		}

		endedAt := c.endedAt[raw.FateID]
		if raw.State.Finished() && endedAt == 0 {
			endedAt = now.Unix()
			c.endedAt[raw.FateID] = endedAt
		}

		fates = append(fates, Fate{
			FateID:      raw.FateID,
			Name:        raw.Name,
			X:           raw.Position.X,
			Y:           raw.Position.Y,
			Z:           raw.Position.Z,
			Radius:      raw.Radius,
			StartedAt:   raw.StartTime,
			EndedAt:     endedAt,
			State:       raw.State,
			InstanceID:  session.InstanceID,
			TerritoryID: session.Zone.TerritoryID,
			MapID:       session.Zone.MapID,
			LevelID:     raw.LevelID,
		})
	}
	return fates, nil
}

// AlwaysReport is false: fates are reported on change only.
func (c *FateCollector) AlwaysReport(Fate) bool { return false }

// Reset forgets stamped end times.
func (c *FateCollector) Reset() {
	clear(c.endedAt)
}
