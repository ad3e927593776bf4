// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import "fmt"

// Accuracy is the tier requested by the application.
type Accuracy string

const (
	AccuracyHigh     Accuracy = "high"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyLow      Accuracy = "low"
)

// ParseAccuracy validates a tier name. The empty string means high.
func ParseAccuracy(s string) (Accuracy, error) {
	switch Accuracy(s) {
	case "", AccuracyHigh:
		return AccuracyHigh, nil
	case AccuracyBalanced:
		return AccuracyBalanced, nil
	case AccuracyLow:
		return AccuracyLow, nil
	}
	return "", fmt.Errorf("unknown location accuracy %q (want high, balanced or low)", s)
}

// Priority is the power/precision class passed to the provider.
type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalancedPowerAccuracy
	PriorityLowPower
)

func (p Priority) String() string {
	switch p {
	case PriorityBalancedPowerAccuracy:
		return "balanced_power_accuracy"
	case PriorityLowPower:
		return "low_power"
	default:
		return "high_accuracy"
	}
}

// Priority maps the tier to a provider priority. Anything unrecognised
// falls back to high accuracy.
func (a Accuracy) Priority() Priority {
	switch a {
	case AccuracyLow:
		return PriorityLowPower
	case AccuracyBalanced:
		return PriorityBalancedPowerAccuracy
	default:
		return PriorityHighAccuracy
	}
}
