// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package event is the named-event channel between the bridge and the
// application embedding it.
//
// Emit delivers a payload synchronously, on the caller's goroutine, to
// every listener registered for the name, in registration order. There
// is no buffering: with no listener the event is dropped. Listeners may
// add or remove subscriptions from inside a callback; a subscription
// removed while an emit is in flight does not receive the rest of it.
//
//	ch := event.NewChannel()
//	sub := ch.AddListener("onGyroUpdate", func(p any) {
//	    r := p.(orientation.Reading)
//	    ...
//	})
//	defer sub.Remove()
package event
