// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

// Fix is a single position as the platform location service reports it.
type Fix struct {
	Latitude  float64 // decimal degrees
	Longitude float64 // decimal degrees
	Accuracy  float64 // horizontal, meters

	Altitude    float64 // meters above mean sea level
	HasAltitude bool
	Speed       float64 // m/s over ground
	HasSpeed    bool
	Bearing     float64 // degrees from true north
	HasBearing  bool

	Time int64 // epoch milliseconds
}

// Reading is the record emitted to the application for every fix.
type Reading struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Reading converts the fix into an immutable Reading. Optional values are
// only set when the fix carries them.
func (f Fix) Reading() Reading {
	r := Reading{
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Accuracy:  f.Accuracy,
		Timestamp: f.Time,
	}
	if f.HasAltitude {
		r.Altitude = float64Ptr(f.Altitude)
	}
	if f.HasSpeed {
		r.Speed = float64Ptr(f.Speed)
	}
	if f.HasBearing {
		r.Heading = float64Ptr(f.Bearing)
	}
	return r
}

func float64Ptr(v float64) *float64 { return &v }
