// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package foray

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xivforays/forays-agent/lib/sampler"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/world"
)

var (
	now     = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session = sampler.Session{
		InstanceID: uuid.MustParse("6f1c2a4e-7d3b-4c51-9a0e-2b8f5d7c1e90"),
		Zone:       world.Zone{TerritoryID: 1252, MapID: 967},
	}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sourceWith(frame world.Frame) *world.Scenario {
	frame.LoggedIn, frame.Recordable = true, true
	scenario := world.NewScenario(world.ScenarioFile{})
	scenario.Set(frame)
	return scenario
}

func TestEnemyCollectorFilters(t *testing.T) {
	source := sourceWith(world.Frame{Enemies: []world.RawEnemy{
		{ObjectID: 1, DataID: 100, Name: "Hostile", Hostile: true, CurrentHP: 10, MaxHP: 10},
		{ObjectID: 2, Name: "Friendly", Hostile: false, CurrentHP: 10, MaxHP: 10},
		{ObjectID: 3, Name: "Dead", Hostile: true, CurrentHP: 0, MaxHP: 10},
	}})
	collector := NewEnemyCollector(discardLogger())

	enemies, err := collector.Collect(source, session, now)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(enemies) != 1 || enemies[0].ObjectID != 1 {
		t.Fatalf("Collect = %+v, want only the living hostile", enemies)
	}
	enemy := enemies[0]
	if enemy.MobIngameID != 100 || enemy.TimeStamp != now.Unix() {
		t.Fatalf("enemy = %+v", enemy)
	}
	if enemy.InstanceID != session.InstanceID || enemy.TerritoryID != 1252 || enemy.MapID != 967 {
		t.Fatalf("session fields not stamped: %+v", enemy)
	}
}

func TestEnemyCollectorCombatHistory(t *testing.T) {
	source := sourceWith(world.Frame{Enemies: []world.RawEnemy{
		{ObjectID: 7, Hostile: true, CurrentHP: 10, MaxHP: 10, HasTarget: true},
	}})
	collector := NewEnemyCollector(discardLogger())

	enemies, _ := collector.Collect(source, session, now)
	if !enemies[0].IsInCombat || !enemies[0].HasBeenInCombat {
		t.Fatalf("targeting enemy not in combat: %+v", enemies[0])
	}
	if !collector.AlwaysReport(enemies[0]) {
		t.Fatal("combat enemy not in the liveness subset")
	}

	// Combat ends, history persists.
	source.Set(world.Frame{LoggedIn: true, Recordable: true, Enemies: []world.RawEnemy{
		{ObjectID: 7, Hostile: true, CurrentHP: 10, MaxHP: 10},
	}})
	enemies, _ = collector.Collect(source, session, now)
	if enemies[0].IsInCombat || !enemies[0].HasBeenInCombat {
		t.Fatalf("after combat: %+v", enemies[0])
	}

	collector.Reset()
	enemies, _ = collector.Collect(source, session, now)
	if enemies[0].HasBeenInCombat {
		t.Fatal("combat history survived Reset")
	}
}

func TestEnemyCollectorDamagedIsInCombat(t *testing.T) {
	source := sourceWith(world.Frame{Enemies: []world.RawEnemy{
		{ObjectID: 1, Hostile: true, CurrentHP: 5, MaxHP: 10},
	}})
	enemies, _ := NewEnemyCollector(discardLogger()).Collect(source, session, now)
	if !enemies[0].IsInCombat {
		t.Fatal("damaged enemy not in combat")
	}
}

func TestEnemyStatusesAndFlags(t *testing.T) {
	source := sourceWith(world.Frame{Enemies: []world.RawEnemy{
		{ObjectID: 1, Hostile: true, CurrentHP: 1, MaxHP: 1, Element: 3, Statuses: []string{"Haste", StatusMutation}},
	}})
	enemies, _ := NewEnemyCollector(discardLogger()).Collect(source, session, now)
	enemy := enemies[0]
	if enemy.IsAdapted || !enemy.IsMutated || enemy.Element != "3" {
		t.Fatalf("enemy = %+v", enemy)
	}
	if flags := enemy.TrackingFlags(); flags != FlagMutated {
		t.Fatalf("flags = %b, want %b", flags, FlagMutated)
	}
}

func TestEnemyWireFormat(t *testing.T) {
	data, err := json.Marshal(Enemy{ObjectID: 99, MobIngameID: 1, MobName: "Bomb", HasBeenInCombat: true})
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, field := range []string{`"mobIngameId":1`, `"mobName":"Bomb"`, `"hasBeenInCombat":true`, `"instanceId":`, `"timeStamp":`} {
		if !strings.Contains(text, field) {
			t.Errorf("encoded enemy missing %s: %s", field, text)
		}
	}
	if strings.Contains(text, "99") {
		t.Errorf("object id leaked into the wire format: %s", text)
	}
}

func TestFateCollector(t *testing.T) {
	source := sourceWith(world.Frame{Fates: []world.RawFate{
		{FateID: 1, Name: "Running", StartTime: 100, State: world.FateRunning, Position: tracking.Position{X: 1}},
		{FateID: 2, Name: "Not started", State: world.FatePreparing, Position: tracking.Position{X: 1}},
		{FateID: 3, Name: "No position", StartTime: 100, State: world.FateRunning},
	}})
	collector := NewFateCollector()

	fates, err := collector.Collect(source, session, now)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(fates) != 1 || fates[0].FateID != 1 || fates[0].EndedAt != 0 {
		t.Fatalf("Collect = %+v", fates)
	}
	if fates[0].TrackingFlags() != FlagRunning {
		t.Fatalf("flags = %b", fates[0].TrackingFlags())
	}

	source.Set(world.Frame{LoggedIn: true, Recordable: true, Fates: []world.RawFate{
		{FateID: 1, StartTime: 100, State: world.FateEnded, Position: tracking.Position{X: 1}},
	}})
	fates, _ = collector.Collect(source, session, now)
	if fates[0].EndedAt != now.Unix() {
		t.Fatalf("EndedAt = %d, want %d", fates[0].EndedAt, now.Unix())
	}

	// The stamp is kept from the first observation.
	fates, _ = collector.Collect(source, session, now.Add(time.Minute))
	if fates[0].EndedAt != now.Unix() {
		t.Fatalf("EndedAt restamped to %d", fates[0].EndedAt)
	}
	if collector.AlwaysReport(fates[0]) {
		t.Fatal("fates have no liveness subset")
	}
}
