// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/config"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/orientation"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

// DisplayData holds the latest events for the OLED view.
type DisplayData struct {
	mu sync.RWMutex

	loc     location.Reading
	haveLoc bool

	gyro     orientation.Reading
	haveGyro bool

	lastErr *sensors.Error
}

// Update records one bridge event.
func (d *DisplayData) Update(name string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case bridge.EventLocationUpdate:
		if r, ok := v.(location.Reading); ok {
			d.loc, d.haveLoc = r, true
		}
	case bridge.EventGyroUpdate:
		if r, ok := v.(orientation.Reading); ok {
			d.gyro, d.haveGyro = r, true
		}
	case bridge.EventLocationError, bridge.EventGyroError:
		if e, ok := v.(*sensors.Error); ok {
			d.lastErr = e
		}
	}
}

// Lines returns the text rows to show, at most five.
func (d *DisplayData) Lines() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var lines []string
	if d.haveLoc {
		lines = append(lines,
			formatCoord(d.loc.Latitude, "N", "S"),
			formatCoord(d.loc.Longitude, "E", "W"),
			fmt.Sprintf("Acc: %.0fm", d.loc.Accuracy))
	} else {
		lines = append(lines, "Location", "Waiting...", "")
	}
	if d.haveGyro {
		lines = append(lines, fmt.Sprintf("G %+.1f %+.1f %+.1f", d.gyro.X, d.gyro.Y, d.gyro.Z))
	} else {
		lines = append(lines, "Gyro: --")
	}
	if d.lastErr != nil {
		lines = append(lines, "! "+string(d.lastErr.Code))
	}
	return lines
}

func formatCoord(v float64, pos, neg string) string {
	dir := pos
	if v < 0 {
		dir = neg
		v = -v
	}
	return fmt.Sprintf("%.5f%s", v, dir)
}

// renderLines draws lines on img in 7x13 text, one row every 13 px.
func renderLines(img draw.Image, lines []string) {
	draw.Draw(img, img.Bounds(), &image.Uniform{image1bit.Off}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 12+i*13)
		drawer.DrawString(line)
	}
}

func showLines(dev *ssd1306.Dev, lines []string) error {
	img := image1bit.NewVerticalLSB(dev.Bounds())
	renderLines(img, lines)
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RunDisplay mirrors the bridge events from MQTT onto an SSD1306 OLED.
func RunDisplay(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log = log.With(slog.String("component", "display"))

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	if err := showLines(dev, []string{"", " Sensors Bridge", "  Looking for", "     sats"}); err != nil {
		log.Warn("error showing splash", slog.Any("error", err))
	}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", slog.String("broker", cfg.MQTTBroker))

	data := &DisplayData{}
	if err := subscribeEvents(client, topicsFromConfig(cfg), log, data.Update); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()
	log.Info("starting update loop")

	for {
		select {
		case <-ctx.Done():
			if err := dev.Halt(); err != nil {
				log.Warn("display halt", slog.Any("error", err))
			}
			return nil
		case <-ticker.C:
			if err := showLines(dev, data.Lines()); err != nil {
				log.Warn("error updating display", slog.Any("error", err))
			}
		}
	}
}
