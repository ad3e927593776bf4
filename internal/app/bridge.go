// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/config"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/metrics"
	"github.com/relabs-tech/sensors_bridge/internal/orientation"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

const shutdownTimeout = 5 * time.Second

// Stack is a facade wired to its platform providers, plus the loops
// that feed those providers.
type Stack struct {
	Facade *bridge.Facade

	runners []func(context.Context) error
	closers []io.Closer
	log     *slog.Logger
}

// SessionDefaults turns the daemon config into the defaults applied to
// start requests that omit keys.
func SessionDefaults(cfg *config.Config) bridge.SessionConfig {
	acc, err := location.ParseAccuracy(cfg.LocationAccuracy)
	if err != nil {
		acc = location.AccuracyHigh
	}
	return bridge.SessionConfig{
		LocationIntervalMs: cfg.LocationIntervalMs,
		GyroIntervalMs:     cfg.GyroIntervalMs,
		LocationAccuracy:   acc,
	}
}

// Build assembles the facade for cfg.SourceMode.
func Build(cfg *config.Config, log *slog.Logger) (*Stack, error) {
	s := &Stack{log: log.With(slog.String("component", "bridge"))}

	var (
		provider location.Provider
		manager  orientation.SensorManager
		perms    sensors.PermissionChecker
	)

	switch cfg.SourceMode {
	case config.SourceModeHardware:
		port, err := location.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
		if err != nil {
			// Permission decides what clients see; the provider stays idle
			// with no fix.
			s.log.Warn("gps unavailable", slog.Any("error", err))
			provider = location.NewNMEAProvider(strings.NewReader(""), cfg.GPSUERE, log)
		} else {
			s.closers = append(s.closers, port)
			gps := location.NewNMEAProvider(port, cfg.GPSUERE, log)
			s.runners = append(s.runners, gps.Run)
			provider = gps
		}

		manager = orientation.NewMPU9250Manager(orientation.MPU9250Config{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			GyroRange:  cfg.IMUGyroRange,
			NativeRate: cfg.IMUNativeRateHz,
		}, log)
		perms = sensors.DevicePermission{Path: cfg.GPSSerialPort}

	default:
		period := time.Duration(max(cfg.LocationIntervalMs, 100)) * time.Millisecond
		sim := location.NewSimulatedProvider(cfg.MockLatitude, cfg.MockLongitude, period, 1)
		s.runners = append(s.runners, sim.Run)
		provider = sim
		manager = orientation.NewMockManager(cfg.MockGyroPresent, cfg.IMUNativeRateHz)
		perms = sensors.StaticPermission(true)
	}

	switch cfg.LocationPermission {
	case config.PermissionGranted:
		perms = sensors.StaticPermission(true)
	case config.PermissionDenied:
		perms = sensors.StaticPermission(false)
	}

	s.Facade = bridge.New(perms, provider, manager, bridge.Options{
		Defaults: SessionDefaults(cfg),
		Logger:   log,
	})
	s.log.Info("bridge assembled",
		slog.String("source_mode", cfg.SourceMode),
		slog.String("permission", cfg.LocationPermission))
	return s, nil
}

// Run drives the providers until ctx is done, then stops sensors and
// releases the devices. A provider that fails does not stop the others.
func (s *Stack) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, run := range s.runners {
		run := run
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				s.log.Error("provider stopped", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	s.Facade.StopSensors()
	// Closing the port unblocks a reader stuck in Read.
	s.closeDevices()
	wg.Wait()
}

func (s *Stack) closeDevices() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("close device", slog.Any("error", err))
		}
	}
	s.closers = nil
}

// RunBridge is the bridge daemon: facade, publishers, metrics and the
// HTTP surface, until ctx is cancelled.
func RunBridge(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	stack, err := Build(cfg, log)
	if err != nil {
		return err
	}
	return stack.serve(ctx, cfg, log)
}

func (s *Stack) serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var err error
	f := s.Facade

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, f)
	defer m.Close()

	var wg sync.WaitGroup

	if cfg.MQTTBroker != "" {
		client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDBridge)
		if err != nil {
			s.closeDevices()
			return err
		}
		pub := NewMQTTPublisher(client, topicsFromConfig(cfg), log, func() { m.PublishFailed("mqtt") })
		pub.Attach(f.Events())
		defer pub.Close()
		log.Info("mqtt publisher ready", slog.String("broker", cfg.MQTTBroker))
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := NewKafkaPublisher(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), log, func() { m.PublishFailed("kafka") })
		pub.Attach(f.Events())
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx)
		}()
		log.Info("kafka publisher ready", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTopic))
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.WebServerPort),
		Handler:           handlers.LoggingHandler(os.Stdout, NewServer(f, m, reg, log).Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("web server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(runCtx)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("web server: %w", err)
		}
	}
	log.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", slog.Any("error", serr))
	}
	cancel()
	wg.Wait()
	return err
}

// CurrentLocation builds the stack, lets the providers run for at most
// wait, and returns the first cached fix.
func CurrentLocation(ctx context.Context, cfg *config.Config, wait time.Duration, log *slog.Logger) (location.Reading, error) {
	stack, err := Build(cfg, log)
	if err != nil {
		return location.Reading{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	go func() {
		stack.Run(runCtx)
		close(finished)
	}()
	defer func() {
		cancel()
		<-finished
	}()

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		reading, err := stack.Facade.GetCurrentLocation(ctx)
		if err == nil || !errors.Is(err, sensors.ErrLocationUnavailable) {
			return reading, err
		}
		select {
		case <-ctx.Done():
			return location.Reading{}, ctx.Err()
		case <-deadline.C:
			return location.Reading{}, err
		case <-poll.C:
		}
	}
}
