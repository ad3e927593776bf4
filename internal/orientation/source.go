// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

// ReadingFunc receives forwarded readings.
type ReadingFunc func(Reading)

// ErrorFunc receives sensor failures.
type ErrorFunc func(*sensors.Error)

// Source streams throttled gyroscope readings. It owns at most one
// platform registration.
type Source struct {
	manager SensorManager
	clock   Clock
	log     *slog.Logger

	mu         sync.Mutex
	unregister func()
}

// NewSource creates a Source. A nil clock means time.Now.
func NewSource(m SensorManager, clock Clock, log *slog.Logger) *Source {
	if clock == nil {
		clock = time.Now
	}
	return &Source{manager: m, clock: clock, log: log.With(slog.String("component", "orientation"))}
}

// Subscribe replaces any running registration. gate decides which
// samples are forwarded and is reset here, so the first sample after
// subscribe always goes through. Samples of an earlier registration still
// in flight are discarded. Subscribe never fails: a missing or
// unusable gyroscope is reported once through onError.
func (s *Source) Subscribe(gate *Throttle, onReading ReadingFunc, onError ErrorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubscribeLocked()
	gen := gate.restart()

	gyro := s.manager.DefaultGyroscope()
	if gyro == nil {
		s.log.Warn("gyroscope not available")
		if onError != nil {
			onError(sensors.SensorUnavailable())
		}
		return
	}

	live := &atomic.Bool{}
	live.Store(true)
	unregister, err := gyro.Register(gate.Interval(), func(smp Sample) {
		if !live.Load() {
			return
		}
		now := s.clock()
		if !gate.allow(gen, now) {
			return
		}
		onReading(Reading{X: smp.X, Y: smp.Y, Z: smp.Z, Timestamp: now.UnixMilli()})
	})
	if err != nil {
		s.log.Error("gyroscope registration failed", slog.Any("error", err))
		if onError != nil {
			onError(sensors.NewError(sensors.CodeSensorUnavailable, fmt.Sprintf("Gyroscope registration failed: %v", err)))
		}
		return
	}
	s.unregister = func() {
		live.Store(false)
		gate.restart()
		unregister()
	}
	s.log.Debug("subscribed", slog.Duration("interval", gate.Interval()))
}

// Unsubscribe removes the platform registration. Safe to call at any time.
func (s *Source) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
}

func (s *Source) unsubscribeLocked() {
	if s.unregister == nil {
		return
	}
	s.unregister()
	s.unregister = nil
	s.log.Debug("unsubscribed")
}

// Active reports whether a registration is live.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregister != nil
}
