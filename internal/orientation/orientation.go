// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "time"

// Reading is one forwarded gyroscope sample.
type Reading struct {
	X         float64 `json:"x"` // rad/s
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
}

// Sample is a raw angular velocity as the sensor delivers it.
type Sample struct {
	X, Y, Z float64 // rad/s
}

// SampleFunc receives samples at the sensor's native rate. Calls are
// serialized per registration.
type SampleFunc func(Sample)

// Gyroscope is the platform motion sensor.
type Gyroscope interface {
	// Register starts delivery; samplingPeriod is a hint, the sensor may
	// deliver faster.
	Register(samplingPeriod time.Duration, fn SampleFunc) (unregister func(), err error)
}

// SensorManager gives access to the device's sensors.
type SensorManager interface {
	// DefaultGyroscope returns nil when the device has no gyroscope.
	DefaultGyroscope() Gyroscope
}

// Clock supplies gate instants. time.Now carries a monotonic reading.
type Clock func() time.Time
