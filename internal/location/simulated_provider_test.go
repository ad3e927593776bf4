// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestSimulatedProvider_At(t *testing.T) {
	p := NewSimulatedProvider(37.0, -122.0, time.Second, 1)

	f := p.At(p.start)
	if math.Abs(f.Latitude-37.0) > 1e-9 || math.Abs(f.Longitude-(-122.0+0.00045)) > 1e-9 {
		t.Errorf("unexpected start position %f,%f", f.Latitude, f.Longitude)
	}
	if f.Time != p.start.UnixMilli() {
		t.Errorf("expected fix time to follow the instant")
	}
	if !f.HasAltitude || !f.HasSpeed || !f.HasBearing {
		t.Error("expected simulated fixes to carry every optional value")
	}
}

func TestSimulatedProvider_RunDeliversBatches(t *testing.T) {
	p := NewSimulatedProvider(37.0, -122.0, 10*time.Millisecond, 3)

	got := make(chan []Fix, 8)
	cancelUpdates, _ := p.RequestUpdates(Request{}, Listener{OnLocations: func(fixes []Fix) {
		select {
		case got <- fixes:
		default:
		}
	}})
	defer cancelUpdates()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case batch := <-got:
		if len(batch) != 3 {
			t.Errorf("expected a batch of 3, got %d", len(batch))
		}
		for i := 1; i < len(batch); i++ {
			if batch[i].Time < batch[i-1].Time {
				t.Error("expected batch in arrival order")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
	if fix, _ := p.LastLocation(context.Background()); fix == nil {
		t.Error("expected a cached fix after running")
	}
}
