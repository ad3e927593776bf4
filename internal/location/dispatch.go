// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"math"
	"sync"
	"sync/atomic"
)

// registration is one RequestUpdates caller.
type registration struct {
	req     Request
	l       Listener
	removed atomic.Bool

	mu        sync.Mutex // serializes deliveries
	delivered bool
	last      int64 // fix time of the previous delivery, epoch ms
}

// dispatcher caches the last fix and fans batches out to registrations,
// honouring each registration's interval and priority.
type dispatcher struct {
	mu   sync.Mutex
	regs map[uint64]*registration
	next uint64
	last *Fix
}

func (d *dispatcher) add(req Request, l Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.regs == nil {
		d.regs = make(map[uint64]*registration)
	}
	d.next++
	id := d.next
	reg := &registration{req: req, l: l}
	d.regs[id] = reg

	// Cancel must not wait on an in-flight delivery: a listener is allowed
	// to cancel from inside its own callback.
	return func() {
		reg.removed.Store(true)
		d.mu.Lock()
		delete(d.regs, id)
		d.mu.Unlock()
	}
}

func (d *dispatcher) snapshot() []*registration {
	d.mu.Lock()
	defer d.mu.Unlock()
	regs := make([]*registration, 0, len(d.regs))
	for _, r := range d.regs {
		regs = append(regs, r)
	}
	return regs
}

func (d *dispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regs)
}

func (d *dispatcher) lastFix() *Fix {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	f := *d.last
	return &f
}

// publish caches the newest fix of the batch and delivers to every
// registration the fixes its interval lets through.
func (d *dispatcher) publish(batch []Fix) {
	if len(batch) == 0 {
		return
	}
	newest := batch[len(batch)-1]
	d.mu.Lock()
	d.last = &newest
	d.mu.Unlock()

	for _, reg := range d.snapshot() {
		reg.deliver(batch)
	}
}

// fail reports err to every registration.
func (d *dispatcher) fail(err error) {
	for _, reg := range d.snapshot() {
		if reg.removed.Load() || reg.l.OnError == nil {
			continue
		}
		reg.mu.Lock()
		reg.l.OnError(err)
		reg.mu.Unlock()
	}
}

func (r *registration) deliver(batch []Fix) {
	r.mu.Lock()
	defer r.mu.Unlock()

	interval := r.req.Interval.Milliseconds()
	out := make([]Fix, 0, len(batch))
	for _, f := range batch {
		if r.delivered && f.Time-r.last < interval {
			continue
		}
		r.delivered = true
		r.last = f.Time
		out = append(out, shape(f, r.req.Priority))
	}
	if len(out) == 0 || r.removed.Load() || r.l.OnLocations == nil {
		return
	}
	r.l.OnLocations(out)
}

// shape degrades a fix to what the requested priority would produce:
// balanced is block level (~110 m), low power is city level (~11 km).
func shape(f Fix, p Priority) Fix {
	switch p {
	case PriorityBalancedPowerAccuracy:
		f.Latitude = roundTo(f.Latitude, 3)
		f.Longitude = roundTo(f.Longitude, 3)
		f.Accuracy = math.Max(f.Accuracy, 100)
	case PriorityLowPower:
		f.Latitude = roundTo(f.Latitude, 1)
		f.Longitude = roundTo(f.Longitude, 1)
		f.Accuracy = math.Max(f.Accuracy, 10_000)
	}
	return f
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
