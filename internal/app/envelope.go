// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/event"
)

// Envelope is how a bridge event travels over WebSocket and Kafka.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// listenAll registers fn for every bridge event and returns the handles.
func listenAll(ch *event.Channel, fn func(name string, payload any)) []*event.Subscription {
	subs := make([]*event.Subscription, 0, len(bridge.EventNames))
	for _, name := range bridge.EventNames {
		name := name
		subs = append(subs, ch.AddListener(name, func(payload any) { fn(name, payload) }))
	}
	return subs
}

func removeAll(subs []*event.Subscription) {
	for _, s := range subs {
		s.Remove()
	}
}
