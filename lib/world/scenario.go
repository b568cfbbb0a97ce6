// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/jsonc"
)

// Frame is the host's world state for one or more host frames.
type Frame struct {
	LoggedIn bool `json:"loggedIn"`

	// Recordable is true when the current territory is one the agent
	// tracks.
	Recordable bool `json:"recordable"`

	Zone Zone `json:"zone"`

	// TerritoryMapID is the map the recordable territory is drawn on.
	// Sampling is only valid while Zone.MapID matches it. Zero skips
	// the check.
	TerritoryMapID uint32 `json:"territoryMapId,omitempty"`

	Enemies []RawEnemy `json:"enemies,omitempty"`
	Fates   []RawFate  `json:"fates,omitempty"`

	// Hold keeps this frame current for that many host frames. Zero
	// and one both mean a single frame.
	Hold int `json:"hold,omitempty"`

	// SampleError, when set, makes Enemies and Fates fail with this
	// message while the frame is current.
	SampleError string `json:"sampleError,omitempty"`
}

// ScenarioFile is the on-disk scenario document.
type ScenarioFile struct {
	// Loop restarts from the first frame after the last one.
	Loop   bool    `json:"loop"`
	Frames []Frame `json:"frames"`
}

// Scenario is a Source that replays frames. Advance moves to the next
// host frame; readers see the current frame until then.
type Scenario struct {
	mu     sync.RWMutex
	frames []Frame
	loop   bool

	index     int
	remaining int
	started   bool
	finished  bool
}

// NewScenario creates a Scenario over frames. The scenario starts
// before the first frame, ineligible, until the first Advance.
func NewScenario(file ScenarioFile) *Scenario {
	return &Scenario{frames: file.Frames, loop: file.Loop}
}

// ParseScenario decodes a JSONC scenario document.
func ParseScenario(data []byte) (*ScenarioFile, error) {
	var file ScenarioFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if len(file.Frames) == 0 {
		return nil, errors.New("parsing scenario: no frames")
	}
	return &file, nil
}

// LoadScenario reads and parses a JSONC scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	file, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewScenario(*file), nil
}

// Advance applies the next host frame. Returns false once a
// non-looping scenario has played its last frame; the last frame
// stays current.
func (s *Scenario) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 || s.finished {
		return false
	}
	if !s.started {
		s.started = true
		s.index = 0
		s.remaining = hold(s.frames[0])
		return true
	}

	s.remaining--
	if s.remaining > 0 {
		return true
	}
	next := s.index + 1
	if next >= len(s.frames) {
		if !s.loop {
			s.finished = true
			return false
		}
		next = 0
	}
	s.index = next
	s.remaining = hold(s.frames[next])
	return true
}

// Set replaces the current frame, marking the scenario started. Tests
// use it to script state one step at a time.
func (s *Scenario) Set(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = []Frame{frame}
	s.index = 0
	s.remaining = hold(frame)
	s.started = true
	s.finished = false
	s.loop = false
}

// FrameIndex returns the index of the current frame, or -1 before the
// first Advance.
func (s *Scenario) FrameIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return -1
	}
	return s.index
}

func (s *Scenario) current() (Frame, bool) {
	if !s.started || len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[s.index], true
}

func (s *Scenario) Eligible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frame, ok := s.current()
	if !ok {
		return false
	}
	if !frame.LoggedIn || !frame.Recordable {
		return false
	}
	return frame.TerritoryMapID == 0 || frame.TerritoryMapID == frame.Zone.MapID
}

func (s *Scenario) Zone() Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frame, _ := s.current()
	return frame.Zone
}

func (s *Scenario) Enemies() ([]RawEnemy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frame, _ := s.current()
	if frame.SampleError != "" {
		return nil, errors.New(frame.SampleError)
	}
	enemies := make([]RawEnemy, len(frame.Enemies))
	copy(enemies, frame.Enemies)
	return enemies, nil
}

func (s *Scenario) Fates() ([]RawFate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frame, _ := s.current()
	if frame.SampleError != "" {
		return nil, errors.New(frame.SampleError)
	}
	fates := make([]RawFate, len(frame.Fates))
	copy(fates, frame.Fates)
	return fates, nil
}

func hold(frame Frame) int {
	if frame.Hold < 1 {
		return 1
	}
	return frame.Hold
}
