// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"sync"
	"time"
)

// MockManager provides a synthetic gyroscope producing smoothly changing
// angular velocity, or no gyroscope at all.
type MockManager struct {
	gyro *mockGyro
}

// NewMockManager creates a manager whose gyroscope ticks at rate Hz. With
// present false the device reports no gyroscope.
func NewMockManager(present bool, rate int) *MockManager {
	if !present {
		return &MockManager{}
	}
	if rate <= 0 {
		rate = 200
	}
	return &MockManager{gyro: &mockGyro{start: time.Now(), period: time.Second / time.Duration(rate)}}
}

func (m *MockManager) DefaultGyroscope() Gyroscope {
	if m.gyro == nil {
		return nil
	}
	return m.gyro
}

type mockGyro struct {
	start  time.Time
	period time.Duration
}

func (g *mockGyro) sampleAt(t time.Time) Sample {
	elapsed := t.Sub(g.start).Seconds()
	return Sample{
		X: 0.35 * math.Sin(elapsed),
		Y: 0.26 * math.Cos(elapsed*0.7),
		Z: 0.52 * math.Sin(elapsed*0.3),
	}
}

func (g *mockGyro) Register(_ time.Duration, fn SampleFunc) (func(), error) {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(g.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case t := <-ticker.C:
				fn(g.sampleAt(t))
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }, nil
}
