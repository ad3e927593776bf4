// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"fmt"
	"sync"

	"github.com/relabs-tech/sensors_bridge/internal/orientation"
)

// State of a sensor session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "starting":
		*s = StateStarting
	case "active":
		*s = StateActive
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// Session tracks whether streaming is active, the applied configuration
// and the gyroscope throttle shared with the orientation source.
//
//	Idle -> Starting -> Active -> Idle (stop)
//	Starting -> Idle (permission failure)
type Session struct {
	mu     sync.Mutex
	state  State
	config SessionConfig
	gate   *orientation.Throttle
}

func newSession(cfg SessionConfig) *Session {
	return &Session{
		config: cfg,
		gate:   orientation.NewThrottle(cfg.gyroInterval()),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns the configuration of the current or last session.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Gate is the gyroscope throttle; its counters outlive sessions.
func (s *Session) Gate() *orientation.Throttle {
	return s.gate
}

func (s *Session) begin(cfg SessionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateStarting
	s.config = cfg
	s.gate.SetInterval(cfg.gyroInterval())
}

func (s *Session) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStarting {
		s.state = StateActive
	}
}

// reset returns to Idle and reports the state it left.
func (s *Session) reset() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateIdle
	return prev
}

func (s *Session) setGyroInterval(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.GyroIntervalMs = max(ms, 0)
	s.gate.SetInterval(s.config.gyroInterval())
}
