// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"math"
	"time"
)

// SimulatedProvider walks a small circle around a centre point. It stands
// in for a GPS receiver in mock mode.
type SimulatedProvider struct {
	lat, lon float64
	period   time.Duration
	batch    int
	start    time.Time

	dispatcher
}

// NewSimulatedProvider produces batchSize fixes every period.
func NewSimulatedProvider(lat, lon float64, period time.Duration, batchSize int) *SimulatedProvider {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SimulatedProvider{
		lat:    lat,
		lon:    lon,
		period: period,
		batch:  batchSize,
		start:  time.Now(),
	}
}

func (p *SimulatedProvider) RequestUpdates(req Request, l Listener) (func(), error) {
	return p.add(req, l), nil
}

func (p *SimulatedProvider) LastLocation(ctx context.Context) (*Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.lastFix(), nil
}

// At returns the simulated fix for instant t.
func (p *SimulatedProvider) At(t time.Time) Fix {
	// one lap of a ~50 m radius circle per minute
	const radiusDeg = 0.00045
	angle := 2 * math.Pi * t.Sub(p.start).Seconds() / 60

	return Fix{
		Latitude:    p.lat + radiusDeg*math.Sin(angle),
		Longitude:   p.lon + radiusDeg*math.Cos(angle),
		Accuracy:    5,
		Altitude:    10 + 2*math.Sin(angle/2),
		HasAltitude: true,
		Speed:       2 * math.Pi * 50 / 60,
		HasSpeed:    true,
		Bearing:     math.Mod(360-angle*180/math.Pi, 360),
		HasBearing:  true,
		Time:        t.UnixMilli(),
	}
}

// Run emits batches until ctx is cancelled.
func (p *SimulatedProvider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			batch := make([]Fix, p.batch)
			step := p.period / time.Duration(p.batch)
			for i := range batch {
				batch[i] = p.At(t.Add(-step * time.Duration(p.batch-1-i)))
			}
			p.publish(batch)
		}
	}
}
