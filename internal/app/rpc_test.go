// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/relabs-tech/sensors_bridge/internal/config"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		params  string
		want    int
		wantErr bool
	}{
		{`75`, 75, false},
		{`{"ms":20}`, 20, false},
		{``, 0, true},
		{`null`, 0, true},
		{`"fast"`, 0, true},
	}
	for _, tt := range tests {
		got, err := parseInterval(json.RawMessage(tt.params))
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseInterval(%q) = %d, %v", tt.params, got, err)
		}
	}
}

func TestCall_InvalidStartConfig(t *testing.T) {
	f, _ := newTestFacade(true)
	_, err := call(context.Background(), f, MethodStartSensors, json.RawMessage(`[1,2]`))
	if e := sensors.AsError(err); e == nil || e.Code != CodeInvalidRequest {
		t.Errorf("expected invalid_request, got %v", err)
	}
}

func TestRespond(t *testing.T) {
	b, _ := json.Marshal(respond(json.RawMessage(`7`), nil, sensors.LocationUnavailable()))
	if string(b) != `{"id":7,"error":{"code":"location_unavailable","message":"Location not available"}}` {
		t.Errorf("unexpected failure shape %s", b)
	}
	b, _ = json.Marshal(respond(json.RawMessage(`8`), true, nil))
	if string(b) != `{"id":8,"result":true}` {
		t.Errorf("unexpected result shape %s", b)
	}
}

func TestSessionDefaults(t *testing.T) {
	cfg := &config.Config{LocationIntervalMs: 2000, GyroIntervalMs: 10, LocationAccuracy: "balanced"}
	got := SessionDefaults(cfg)
	if got.LocationIntervalMs != 2000 || got.GyroIntervalMs != 10 || got.LocationAccuracy != location.AccuracyBalanced {
		t.Errorf("unexpected defaults %+v", got)
	}
}

func TestBuild_MockMode(t *testing.T) {
	cfg := &config.Config{
		SourceMode:         config.SourceModeMock,
		LocationPermission: config.PermissionDenied,
		MockLatitude:       37,
		MockLongitude:      -122,
		IMUNativeRateHz:    200,
		LocationIntervalMs: 1000,
		GyroIntervalMs:     50,
		LocationAccuracy:   "high",
	}
	stack, err := Build(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if stack.Facade.IsLocationServiceEnabled() {
		t.Error("LOCATION_PERMISSION=denied must win over mock mode")
	}
	if err := stack.Facade.StartSensors(SessionDefaults(cfg)); err == nil {
		t.Error("expected permission_denied")
	}
}

func TestBuild_HardwareWithoutGPSDevice(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		SourceMode:         config.SourceModeHardware,
		LocationPermission: config.PermissionAuto,
		GPSSerialPort:      filepath.Join(dir, "serial0"),
		GPSBaudRate:        9600,
		GPSUERE:            5,
		IMUSPIDevice:       filepath.Join(dir, "spidev0.0"),
		IMUCSPin:           "8",
		IMUNativeRateHz:    200,
		LocationIntervalMs: 1000,
		GyroIntervalMs:     50,
		LocationAccuracy:   "high",
	}
	stack, err := Build(cfg, discardLogger())
	if err != nil {
		t.Fatalf("an unreadable GPS device must not fail the build: %v", err)
	}
	f := stack.Facade
	if f.IsLocationServiceEnabled() {
		t.Error("expected location disabled when the GPS device is unreadable")
	}
	if err := f.StartSensors(SessionDefaults(cfg)); !errors.Is(err, sensors.ErrPermissionDenied) {
		t.Errorf("start: expected permission_denied, got %v", err)
	}
	if _, err := f.GetCurrentLocation(context.Background()); !errors.Is(err, sensors.ErrPermissionDenied) {
		t.Errorf("current location: expected permission_denied, got %v", err)
	}

	cfg.LocationPermission = config.PermissionGranted
	stack, err = Build(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stack.Facade.GetCurrentLocation(context.Background()); !errors.Is(err, sensors.ErrLocationUnavailable) {
		t.Errorf("expected location_unavailable without a device, got %v", err)
	}
}

type trackingCloser struct{ closed int }

func (c *trackingCloser) Close() error {
	c.closed++
	return nil
}

func TestServe_MQTTFailureReleasesDevices(t *testing.T) {
	f, _ := newTestFacade(true)
	port := &trackingCloser{}
	stack := &Stack{Facade: f, closers: []io.Closer{port}, log: discardLogger()}
	cfg := &config.Config{
		MQTTBroker:         "tcp://127.0.0.1:1",
		MQTTClientIDBridge: "sensors-bridge-test",
		WebServerPort:      8080,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stack.serve(ctx, cfg, discardLogger()); err == nil {
		t.Fatal("expected the MQTT connect error")
	}
	if port.closed != 1 {
		t.Errorf("expected the device closed once, got %d", port.closed)
	}
}
