// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/relabs-tech/sensors_bridge/internal/event"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/orientation"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

// Options tune a Facade. Zero values pick sensible defaults.
type Options struct {
	// Defaults fill keys omitted from StartOptions.
	Defaults SessionConfig
	// Clock drives the gyroscope throttle; nil means time.Now.
	Clock orientation.Clock
	// Events is the channel to publish on; nil creates a private one.
	Events *event.Channel
	Logger *slog.Logger
}

// Facade is the single entry point of the bridge: it owns the session and
// both sources and publishes their output on the event channel.
type Facade struct {
	permissions sensors.PermissionChecker
	location    *location.Source
	orientation *orientation.Source
	events      *event.Channel
	session     *Session
	defaults    SessionConfig
	log         *slog.Logger

	mu  sync.Mutex // guards the subscription slots during start/stop
	out outbox
}

// New assembles a facade over the platform location provider and sensor
// manager.
func New(perms sensors.PermissionChecker, provider location.Provider, manager orientation.SensorManager, opts Options) *Facade {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	defaults := opts.Defaults
	if defaults == (SessionConfig{}) {
		defaults = DefaultSessionConfig()
	}
	events := opts.Events
	if events == nil {
		events = event.NewChannel(log)
	}

	return &Facade{
		permissions: perms,
		location:    location.NewSource(provider, log),
		orientation: orientation.NewSource(manager, opts.Clock, log),
		events:      events,
		session:     newSession(defaults),
		defaults:    defaults,
		log:         log.With(slog.String("component", "bridge")),
	}
}

// Events returns the channel the facade publishes on.
func (f *Facade) Events() *event.Channel { return f.events }

// AddListener is a shortcut for Events().AddListener.
func (f *Facade) AddListener(name string, l event.Listener) *event.Subscription {
	return f.events.AddListener(name, l)
}

// Session exposes the session for inspection.
func (f *Facade) Session() *Session { return f.session }

// IsLocationServiceEnabled reports whether the location permission is granted.
func (f *Facade) IsLocationServiceEnabled() bool {
	return f.permissions.LocationGranted()
}

// GetCurrentLocation returns the platform's last cached fix. Errors are
// *sensors.Error with code permission_denied, location_unavailable or
// location_error.
func (f *Facade) GetCurrentLocation(ctx context.Context) (location.Reading, error) {
	if !f.permissions.LocationGranted() {
		return location.Reading{}, sensors.PermissionDenied()
	}
	r, err := f.location.LastKnown(ctx)
	if err != nil {
		f.log.Debug("current location failed", slog.Any("error", err))
		return location.Reading{}, err
	}
	return r, nil
}

// StartSensorsWithOptions resolves opts and starts a session. Omitted keys
// take the facade defaults, except the gyroscope interval which keeps its
// current value.
func (f *Facade) StartSensorsWithOptions(opts StartOptions) error {
	base := f.defaults
	base.GyroIntervalMs = f.session.Config().GyroIntervalMs
	return f.StartSensors(opts.Resolve(base))
}

// StartSensors tears down any running subscriptions and starts location
// and gyroscope streaming with cfg. It fails only with permission_denied
// (or a location provider failure); a missing gyroscope is reported as an
// onGyroError event after the call returns.
func (f *Facade) StartSensors(cfg SessionConfig) error {
	f.out.hold()
	defer f.out.release()
	f.mu.Lock()
	defer f.mu.Unlock()

	f.session.begin(cfg)
	f.teardownLocked()

	if !f.permissions.LocationGranted() {
		f.session.reset()
		f.log.Warn("start rejected: location permission denied")
		return sensors.PermissionDenied()
	}

	err := f.location.Subscribe(cfg.locationInterval(), cfg.LocationAccuracy, f.onLocation, f.onLocationError)
	if err != nil {
		f.session.reset()
		f.log.Error("location subscribe failed", slog.Any("error", err))
		return sensors.AsError(err)
	}

	f.orientation.Subscribe(f.session.Gate(), f.onGyro, f.onGyroError)
	f.session.activate()

	f.log.Info("sensors started",
		slog.Int("location_interval_ms", cfg.LocationIntervalMs),
		slog.Int("gyro_interval_ms", cfg.GyroIntervalMs),
		slog.String("accuracy", string(cfg.LocationAccuracy)))
	return nil
}

// StopSensors ends the session. It is safe to call when nothing runs.
func (f *Facade) StopSensors() {
	f.out.hold()
	defer f.out.release()
	f.mu.Lock()
	defer f.mu.Unlock()

	f.teardownLocked()
	if prev := f.session.reset(); prev != StateIdle {
		f.log.Info("sensors stopped")
	}
}

// SetGyroUpdateInterval changes the throttle of the running or next
// gyroscope stream. The platform registration is kept as is, so the
// sensor keeps sampling at its original rate.
func (f *Facade) SetGyroUpdateInterval(ms int) {
	f.session.setGyroInterval(ms)
	f.log.Debug("gyro interval updated", slog.Int("ms", ms))
}

func (f *Facade) teardownLocked() {
	f.location.Unsubscribe()
	f.orientation.Unsubscribe()
}

func (f *Facade) emit(name string, payload any) {
	f.out.run(func() { f.events.Emit(name, payload) })
}

func (f *Facade) onLocation(r location.Reading)    { f.emit(EventLocationUpdate, r) }
func (f *Facade) onGyro(r orientation.Reading)     { f.emit(EventGyroUpdate, r) }
func (f *Facade) onLocationError(e *sensors.Error) { f.emit(EventLocationError, e) }
func (f *Facade) onGyroError(e *sensors.Error)     { f.emit(EventGyroError, e) }
