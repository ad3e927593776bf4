// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import "sync"

// outbox defers deliveries raised while a control call holds the facade
// lock and replays them, in order, once the call lets go. Outside
// control calls deliveries run immediately on the caller's goroutine.
type outbox struct {
	mu       sync.Mutex
	depth    int
	flushing bool
	queued   []func()
}

func (o *outbox) hold() {
	o.mu.Lock()
	o.depth++
	o.mu.Unlock()
}

func (o *outbox) release() {
	o.mu.Lock()
	o.depth--
	if o.depth > 0 || o.flushing {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	for len(o.queued) > 0 && o.depth == 0 {
		batch := o.queued
		o.queued = nil
		o.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		o.mu.Lock()
	}
	o.flushing = false
	o.mu.Unlock()
}

func (o *outbox) run(fn func()) {
	o.mu.Lock()
	if o.depth > 0 || o.flushing || len(o.queued) > 0 {
		o.queued = append(o.queued, fn)
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	fn()
}
