// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"sync"
	"sync/atomic"
	"time"
)

// Throttle drops samples arriving faster than its interval. The interval
// can be changed while samples are flowing and applies to the next one.
type Throttle struct {
	interval atomic.Int64 // nanoseconds

	mu     sync.Mutex
	last   time.Time
	primed bool
	gen    uint64 // bumped by Reset; samples of older generations are stale

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// NewThrottle creates a throttle with the given minimum interval.
func NewThrottle(interval time.Duration) *Throttle {
	t := &Throttle{}
	t.SetInterval(interval)
	return t
}

// SetInterval changes the threshold. Negative values are treated as zero.
func (t *Throttle) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.interval.Store(int64(d))
}

// Interval returns the current threshold.
func (t *Throttle) Interval() time.Duration {
	return time.Duration(t.interval.Load())
}

// Allow reports whether a sample observed at now is forwarded. The first
// sample after Reset always is; afterwards now must be at least one
// interval past the last forwarded instant.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowLocked(now)
}

// allow is Allow for a sample of registration generation gen. Stale
// samples are rejected without touching the state or the counters.
func (t *Throttle) allow(gen uint64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	return t.allowLocked(now)
}

func (t *Throttle) allowLocked(now time.Time) bool {
	if t.primed && now.Sub(t.last) < t.Interval() {
		t.dropped.Add(1)
		return false
	}
	t.primed = true
	t.last = now
	t.forwarded.Add(1)
	return true
}

// Reset forgets the last forwarded instant and starts a new generation.
func (t *Throttle) Reset() {
	t.restart()
}

func (t *Throttle) restart() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.primed = false
	t.last = time.Time{}
	t.gen++
	return t.gen
}

// Forwarded is the number of samples let through since creation.
func (t *Throttle) Forwarded() uint64 { return t.forwarded.Load() }

// Dropped is the number of samples suppressed since creation.
func (t *Throttle) Dropped() uint64 { return t.dropped.Load() }
