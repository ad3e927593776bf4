// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package event

import (
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Listener handles one emitted payload.
type Listener func(payload any)

// Subscription is the handle returned by AddListener.
type Subscription struct {
	ch       *Channel
	name     string
	id       uint64
	listener Listener
	removed  atomic.Bool
}

// Remove unregisters the listener. Calling it more than once is a no-op.
func (s *Subscription) Remove() {
	if s.removed.Swap(true) {
		return
	}
	s.ch.remove(s)
}

// Channel is a process-wide named-event dispatcher.
type Channel struct {
	mu        sync.RWMutex
	listeners map[string][]*Subscription
	nextID    atomic.Uint64
	log       *slog.Logger
}

// NewChannel creates an empty channel. A nil logger discards panic reports.
func NewChannel(log *slog.Logger) *Channel {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Channel{
		listeners: make(map[string][]*Subscription),
		log:       log.With(slog.String("component", "events")),
	}
}

// AddListener registers l for events named name.
func (c *Channel) AddListener(name string, l Listener) *Subscription {
	sub := &Subscription{ch: c, name: name, id: c.nextID.Add(1), listener: l}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[name] = append(c.listeners[name], sub)
	return sub
}

func (c *Channel) remove(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.listeners[sub.name]
	for i, s := range subs {
		if s.id != sub.id {
			continue
		}
		// copy so that snapshots taken by in-flight emits stay intact
		next := make([]*Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(c.listeners, sub.name)
		} else {
			c.listeners[sub.name] = next
		}
		return
	}
}

// Emit delivers payload to the listeners registered for name.
func (c *Channel) Emit(name string, payload any) {
	c.mu.RLock()
	subs := c.listeners[name]
	c.mu.RUnlock()

	for _, sub := range subs {
		if sub.removed.Load() {
			continue
		}
		c.safeCall(sub, payload)
	}
}

// safeCall invokes a listener and recovers from panics so one broken
// listener cannot starve the others.
func (c *Channel) safeCall(sub *Subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("listener panicked",
				slog.String("event", sub.name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	sub.listener(payload)
}

// ListenerCount returns the number of listeners registered for name.
func (c *Channel) ListenerCount(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners[name])
}
