// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/orientation"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pushProvider lets a test deliver fixes by hand.
type pushProvider struct {
	mu        sync.Mutex
	listeners map[int]location.Listener
	next      int
	last      *location.Fix
}

func (p *pushProvider) RequestUpdates(_ location.Request, l location.Listener) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners == nil {
		p.listeners = make(map[int]location.Listener)
	}
	p.next++
	id := p.next
	p.listeners[id] = l
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}, nil
}

func (p *pushProvider) LastLocation(context.Context) (*location.Fix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, nil
}

func (p *pushProvider) setLast(f *location.Fix) {
	p.mu.Lock()
	p.last = f
	p.mu.Unlock()
}

func (p *pushProvider) deliver(f location.Fix) {
	p.mu.Lock()
	var ls []location.Listener
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()
	for _, l := range ls {
		l.OnLocations([]location.Fix{f})
	}
}

type absentGyro struct{}

func (absentGyro) DefaultGyroscope() orientation.Gyroscope { return nil }

func newTestFacade(granted bool) (*bridge.Facade, *pushProvider) {
	p := &pushProvider{}
	f := bridge.New(sensors.StaticPermission(granted), p, absentGyro{}, bridge.Options{
		Clock:  func() time.Time { return time.UnixMilli(0) },
		Logger: discardLogger(),
	})
	return f, p
}
