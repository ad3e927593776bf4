// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"time"

	"github.com/relabs-tech/sensors_bridge/internal/location"
)

const (
	DefaultLocationIntervalMs = 1000
	DefaultGyroIntervalMs     = 50
	DefaultLocationAccuracy   = location.AccuracyHigh
)

// SessionConfig is the fully resolved configuration of one session.
type SessionConfig struct {
	LocationIntervalMs int               `json:"locationIntervalMs"`
	GyroIntervalMs     int               `json:"gyroIntervalMs"`
	LocationAccuracy   location.Accuracy `json:"locationAccuracy"`
	// Accepted for compatibility; no behaviour depends on it.
	UseSignificantChangesOnly bool `json:"useSignificantChangesOnly"`
}

// DefaultSessionConfig returns 1000 ms location, 50 ms gyroscope, high accuracy.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		LocationIntervalMs: DefaultLocationIntervalMs,
		GyroIntervalMs:     DefaultGyroIntervalMs,
		LocationAccuracy:   DefaultLocationAccuracy,
	}
}

func (c SessionConfig) locationInterval() time.Duration {
	return time.Duration(max(c.LocationIntervalMs, 0)) * time.Millisecond
}

func (c SessionConfig) gyroInterval() time.Duration {
	return time.Duration(max(c.GyroIntervalMs, 0)) * time.Millisecond
}

// StartOptions is the configuration object as callers send it: every key
// is optional.
type StartOptions struct {
	LocationIntervalMs        *int    `json:"locationIntervalMs,omitempty"`
	GyroIntervalMs            *int    `json:"gyroIntervalMs,omitempty"`
	LocationAccuracy          *string `json:"locationAccuracy,omitempty"`
	UseSignificantChangesOnly *bool   `json:"useSignificantChangesOnly,omitempty"`
}

// Resolve fills omitted keys from base. Unknown accuracy names resolve
// to high accuracy, negative intervals to zero.
func (o StartOptions) Resolve(base SessionConfig) SessionConfig {
	cfg := base
	if o.LocationIntervalMs != nil {
		cfg.LocationIntervalMs = max(*o.LocationIntervalMs, 0)
	}
	if o.GyroIntervalMs != nil {
		cfg.GyroIntervalMs = max(*o.GyroIntervalMs, 0)
	}
	if o.LocationAccuracy != nil {
		acc, err := location.ParseAccuracy(*o.LocationAccuracy)
		if err != nil {
			acc = location.AccuracyHigh
		}
		cfg.LocationAccuracy = acc
	}
	if o.UseSignificantChangesOnly != nil {
		cfg.UseSignificantChangesOnly = *o.UseSignificantChangesOnly
	}
	return cfg
}
