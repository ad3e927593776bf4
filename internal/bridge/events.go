// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

// Event names published on the facade's channel.
//
//	onLocationUpdate  location.Reading
//	onGyroUpdate      orientation.Reading
//	onLocationError   *sensors.Error
//	onGyroError       *sensors.Error
const (
	EventLocationUpdate = "onLocationUpdate"
	EventGyroUpdate     = "onGyroUpdate"
	EventLocationError  = "onLocationError"
	EventGyroError      = "onGyroError"
)

// EventNames lists every event the facade emits.
var EventNames = []string{EventLocationUpdate, EventGyroUpdate, EventLocationError, EventGyroError}
