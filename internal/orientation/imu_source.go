// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// Gyroscope sensitivity in LSB per °/s for GYRO_FS_SEL 0-3
// (±250, ±500, ±1000, ±2000 °/s).
var gyroSensitivity = [4]float64{131.0, 65.5, 32.8, 16.4}

// MPU9250Config selects the SPI wiring of the IMU.
type MPU9250Config struct {
	SPIDevice  string
	CSPin      string
	GyroRange  byte // 0-3
	NativeRate int  // Hz
}

// MPU9250Manager exposes the gyroscope of an MPU9250 on SPI. When the
// device cannot be initialised the manager reports no gyroscope.
type MPU9250Manager struct {
	gyro *mpu9250Gyro
}

// NewMPU9250Manager probes the IMU. Failure is logged, not returned: a
// board without the IMU simply has no gyroscope.
func NewMPU9250Manager(cfg MPU9250Config, log *slog.Logger) *MPU9250Manager {
	log = log.With(slog.String("component", "imu"))

	dev, err := openMPU9250(cfg)
	if err != nil {
		log.Warn("gyroscope unavailable", slog.Any("error", err))
		return &MPU9250Manager{}
	}

	rate := cfg.NativeRate
	if rate <= 0 {
		rate = 200
	}
	log.Info("gyroscope ready",
		slog.String("spi", cfg.SPIDevice),
		slog.Int("range_dps", []int{250, 500, 1000, 2000}[cfg.GyroRange]),
		slog.Int("native_rate_hz", rate))

	return &MPU9250Manager{gyro: &mpu9250Gyro{
		dev:    dev,
		rng:    cfg.GyroRange,
		period: time.Second / time.Duration(rate),
		log:    log,
	}}
}

func (m *MPU9250Manager) DefaultGyroscope() Gyroscope {
	if m.gyro == nil {
		return nil
	}
	return m.gyro
}

func openMPU9250(cfg MPU9250Config) (*mpu9250.MPU9250, error) {
	if cfg.GyroRange > 3 {
		return nil, fmt.Errorf("gyro range %d out of 0-3", cfg.GyroRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU CS pin %q not found", cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU SPI transport (%s): %w", cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU initialization: %w", err)
	}
	if err := dev.SetGyroRange(cfg.GyroRange); err != nil {
		return nil, fmt.Errorf("IMU set gyro range: %w", err)
	}
	return dev, nil
}

type mpu9250Gyro struct {
	dev    *mpu9250.MPU9250
	rng    byte
	period time.Duration
	log    *slog.Logger

	mu sync.Mutex // serializes bus access between registrations
}

// Register polls the device at its native rate regardless of the hint.
func (g *mpu9250Gyro) Register(_ time.Duration, fn SampleFunc) (func(), error) {
	stop := make(chan struct{})
	go g.poll(stop, fn)

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }, nil
}

func (g *mpu9250Gyro) poll(stop <-chan struct{}, fn SampleFunc) {
	ticker := time.NewTicker(g.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			smp, err := g.read()
			if err != nil {
				g.log.Debug("gyro read error", slog.Any("error", err))
				continue
			}
			select {
			case <-stop:
				return
			default:
			}
			fn(smp)
		}
	}
}

func (g *mpu9250Gyro) read() (Sample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	gx, err := g.dev.GetRotationX()
	if err != nil {
		return Sample{}, fmt.Errorf("gyro X: %w", err)
	}
	gy, err := g.dev.GetRotationY()
	if err != nil {
		return Sample{}, fmt.Errorf("gyro Y: %w", err)
	}
	gz, err := g.dev.GetRotationZ()
	if err != nil {
		return Sample{}, fmt.Errorf("gyro Z: %w", err)
	}
	return Sample{
		X: rawToRadPerSec(gx, g.rng),
		Y: rawToRadPerSec(gy, g.rng),
		Z: rawToRadPerSec(gz, g.rng),
	}, nil
}

// rawToRadPerSec converts a raw gyro count to rad/s for the given range.
func rawToRadPerSec(raw int16, rng byte) float64 {
	return float64(raw) / gyroSensitivity[rng&3] * math.Pi / 180
}
