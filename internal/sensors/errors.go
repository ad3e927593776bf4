// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "errors"

// Code is the short symbolic identifier carried by every bridge error.
type Code string

const (
	CodePermissionDenied    Code = "permission_denied"
	CodeLocationUnavailable Code = "location_unavailable"
	CodeLocationError       Code = "location_error"
	CodeSensorUnavailable   Code = "sensor_unavailable"
)

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrPermissionDenied    = &Error{Code: CodePermissionDenied}
	ErrLocationUnavailable = &Error{Code: CodeLocationUnavailable}
	ErrLocationError       = &Error{Code: CodeLocationError}
	ErrSensorUnavailable   = &Error{Code: CodeSensorUnavailable}
)

// Error is the record handed to callers, either as a rejected call or as
// the payload of an error event.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewError builds an Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// PermissionDenied is returned whenever the location permission is missing.
func PermissionDenied() *Error {
	return NewError(CodePermissionDenied, "Location permission denied")
}

// LocationUnavailable is returned when there is no cached fix.
func LocationUnavailable() *Error {
	return NewError(CodeLocationUnavailable, "Location not available")
}

// LocationError wraps a platform failure; its message is passed through verbatim.
func LocationError(err error) *Error {
	return NewError(CodeLocationError, err.Error())
}

// SensorUnavailable is reported when the gyroscope does not exist on the device.
func SensorUnavailable() *Error {
	return NewError(CodeSensorUnavailable, "Gyroscope sensor not available")
}

// AsError extracts the bridge error from err. Anything that is not
// already an *Error is reported as a location_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return LocationError(err)
}
