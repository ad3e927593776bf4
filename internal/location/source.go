// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

// ReadingFunc receives every converted reading.
type ReadingFunc func(Reading)

// ErrorFunc receives streaming failures.
type ErrorFunc func(*sensors.Error)

// Source wraps a Provider and owns at most one live subscription.
type Source struct {
	provider Provider
	log      *slog.Logger

	mu     sync.Mutex
	cancel func()
}

// NewSource creates a Source on top of the given provider.
func NewSource(p Provider, log *slog.Logger) *Source {
	return &Source{provider: p, log: log.With(slog.String("component", "location"))}
}

// Subscribe replaces any running subscription with a new one. Every fix
// of every batch is converted and forwarded, in order.
func (s *Source) Subscribe(interval time.Duration, accuracy Accuracy, onReading ReadingFunc, onError ErrorFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubscribeLocked()

	req := Request{Priority: accuracy.Priority(), Interval: interval}
	cancel, err := s.provider.RequestUpdates(req, Listener{
		OnLocations: func(fixes []Fix) {
			for _, f := range fixes {
				onReading(f.Reading())
			}
		},
		OnError: func(err error) {
			if onError != nil {
				onError(sensors.AsError(err))
			}
		},
	})
	if err != nil {
		return err
	}
	s.cancel = cancel
	s.log.Debug("subscribed", slog.Duration("interval", interval), slog.String("priority", req.Priority.String()))
	return nil
}

// Unsubscribe stops the running subscription. Safe to call at any time.
func (s *Source) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
}

func (s *Source) unsubscribeLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.log.Debug("unsubscribed")
}

// Active reports whether a subscription is live.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// LastKnown returns the provider's cached fix. It does not need a running
// subscription.
func (s *Source) LastKnown(ctx context.Context) (Reading, error) {
	fix, err := s.provider.LastLocation(ctx)
	if err != nil {
		return Reading{}, sensors.AsError(err)
	}
	if fix == nil {
		return Reading{}, sensors.LocationUnavailable()
	}
	return fix.Reading(), nil
}
