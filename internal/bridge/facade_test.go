// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/orientation"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

type fakeProvider struct {
	mu        sync.Mutex
	listeners map[int]location.Listener
	requests  []location.Request
	next      int
	last      *location.Fix
	lastErr   error
	reqErr    error
}

func (p *fakeProvider) RequestUpdates(req location.Request, l location.Listener) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reqErr != nil {
		return nil, p.reqErr
	}
	if p.listeners == nil {
		p.listeners = make(map[int]location.Listener)
	}
	p.next++
	id := p.next
	p.listeners[id] = l
	p.requests = append(p.requests, req)
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}, nil
}

func (p *fakeProvider) LastLocation(ctx context.Context) (*location.Fix, error) {
	return p.last, p.lastErr
}

func (p *fakeProvider) active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *fakeProvider) deliver(fixes ...location.Fix) {
	p.mu.Lock()
	ls := make([]location.Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()
	for _, l := range ls {
		l.OnLocations(fixes)
	}
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	ls := make([]location.Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()
	for _, l := range ls {
		l.OnError(err)
	}
}

type fakeGyro struct {
	mu      sync.Mutex
	fns     map[int]orientation.SampleFunc
	next    int
	periods []time.Duration
}

func (g *fakeGyro) Register(period time.Duration, fn orientation.SampleFunc) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fns == nil {
		g.fns = make(map[int]orientation.SampleFunc)
	}
	g.next++
	id := g.next
	g.fns[id] = fn
	g.periods = append(g.periods, period)
	return func() {
		g.mu.Lock()
		delete(g.fns, id)
		g.mu.Unlock()
	}, nil
}

func (g *fakeGyro) active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fns)
}

func (g *fakeGyro) sample(s orientation.Sample) {
	g.mu.Lock()
	fns := make([]orientation.SampleFunc, 0, len(g.fns))
	for _, fn := range g.fns {
		fns = append(fns, fn)
	}
	g.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

type fakeManager struct{ gyro *fakeGyro }

func (m fakeManager) DefaultGyroscope() orientation.Gyroscope {
	if m.gyro == nil {
		return nil
	}
	return m.gyro
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Set(ms int64)   { c.now = time.UnixMilli(ms) }

type recorder struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (r *recorder) listen(f *Facade) {
	for _, name := range EventNames {
		name := name
		f.AddListener(name, func(payload any) {
			r.mu.Lock()
			r.events = append(r.events, name)
			r.data = append(r.data, payload)
			r.mu.Unlock()
		})
	}
}

func (r *recorder) of(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for i, n := range r.events {
		if n == name {
			out = append(out, r.data[i])
		}
	}
	return out
}

type fixture struct {
	facade   *Facade
	provider *fakeProvider
	gyro     *fakeGyro
	clock    *fakeClock
	rec      *recorder
}

func newFixture(t *testing.T, granted bool, withGyro bool) *fixture {
	t.Helper()
	fx := &fixture{provider: &fakeProvider{}, clock: &fakeClock{}, rec: &recorder{}}
	if withGyro {
		fx.gyro = &fakeGyro{}
	}
	fx.facade = New(sensors.StaticPermission(granted), fx.provider, fakeManager{gyro: fx.gyro}, Options{Clock: fx.clock.Now})
	fx.rec.listen(fx.facade)
	return fx
}

func TestFacade_IsLocationServiceEnabled(t *testing.T) {
	if !newFixture(t, true, true).facade.IsLocationServiceEnabled() {
		t.Error("expected enabled with permission granted")
	}
	if newFixture(t, false, true).facade.IsLocationServiceEnabled() {
		t.Error("expected disabled with permission denied")
	}
}

func TestFacade_GetCurrentLocation(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.provider.last = &location.Fix{Latitude: 37.0, Longitude: -122.0, Accuracy: 5.0, Time: 1000}

	r, err := fx.facade.GetCurrentLocation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := location.Reading{Latitude: 37.0, Longitude: -122.0, Accuracy: 5.0, Timestamp: 1000}
	if r != want {
		t.Errorf("got %+v, want %+v", r, want)
	}
	if fx.provider.active() != 0 {
		t.Error("one-shot read must not subscribe")
	}
}

func TestFacade_GetCurrentLocationErrors(t *testing.T) {
	tests := []struct {
		name    string
		granted bool
		lastErr error
		want    sensors.Code
	}{
		{"denied", false, nil, sensors.CodePermissionDenied},
		{"no fix", true, nil, sensors.CodeLocationUnavailable},
		{"platform failure", true, errors.New("gps offline"), sensors.CodeLocationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.granted, true)
			fx.provider.lastErr = tt.lastErr
			_, err := fx.facade.GetCurrentLocation(context.Background())
			if got := sensors.AsError(err); got == nil || got.Code != tt.want {
				t.Errorf("got %v, want code %s", err, tt.want)
			}
		})
	}
}

func TestFacade_StartForwardsLocation(t *testing.T) {
	fx := newFixture(t, true, true)
	err := fx.facade.StartSensors(SessionConfig{LocationIntervalMs: 1000, GyroIntervalMs: 50, LocationAccuracy: location.AccuracyHigh})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if fx.facade.Session().State() != StateActive {
		t.Fatalf("state = %s, want active", fx.facade.Session().State())
	}

	fx.provider.deliver(location.Fix{Latitude: 37.0, Longitude: -122.0, Accuracy: 5.0, Time: 1000})

	got := fx.rec.of(EventLocationUpdate)
	if len(got) != 1 {
		t.Fatalf("got %d location events, want 1", len(got))
	}
	want := location.Reading{Latitude: 37.0, Longitude: -122.0, Accuracy: 5.0, Timestamp: 1000}
	if got[0].(location.Reading) != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}

	req := fx.provider.requests[0]
	if req.Interval != time.Second || req.Priority != location.PriorityHighAccuracy {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestFacade_BatchedFixesForwardedInOrder(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.facade.StartSensors(DefaultSessionConfig())

	fx.provider.deliver(
		location.Fix{Latitude: 1, Time: 1},
		location.Fix{Latitude: 2, Time: 2},
		location.Fix{Latitude: 3, Time: 3},
	)

	got := fx.rec.of(EventLocationUpdate)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	for i, p := range got {
		if r := p.(location.Reading); r.Timestamp != int64(i+1) {
			t.Errorf("event %d has timestamp %d", i, r.Timestamp)
		}
	}
}

func TestFacade_GyroThrottle(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.facade.StartSensors(SessionConfig{LocationIntervalMs: 1000, GyroIntervalMs: 50, LocationAccuracy: location.AccuracyHigh})

	for _, ms := range []int64{0, 30, 60} {
		fx.clock.Set(ms)
		fx.gyro.sample(orientation.Sample{X: float64(ms)})
	}

	got := fx.rec.of(EventGyroUpdate)
	if len(got) != 2 {
		t.Fatalf("got %d gyro events, want 2", len(got))
	}
	if got[0].(orientation.Reading).Timestamp != 0 || got[1].(orientation.Reading).Timestamp != 60 {
		t.Errorf("unexpected readings %+v", got)
	}
}

func TestFacade_DoubleStartDoesNotLeak(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.facade.StartSensors(DefaultSessionConfig())
	fx.facade.StartSensors(DefaultSessionConfig())

	if n := fx.provider.active(); n != 1 {
		t.Errorf("active location subscriptions = %d, want 1", n)
	}
	if n := fx.gyro.active(); n != 1 {
		t.Errorf("active gyro registrations = %d, want 1", n)
	}

	fx.provider.deliver(location.Fix{Time: 5})
	if n := len(fx.rec.of(EventLocationUpdate)); n != 1 {
		t.Errorf("got %d location events, want 1", n)
	}
}

func TestFacade_PermissionDenied(t *testing.T) {
	fx := newFixture(t, false, true)
	err := fx.facade.StartSensors(DefaultSessionConfig())
	if !errors.Is(err, sensors.ErrPermissionDenied) {
		t.Fatalf("got %v, want permission_denied", err)
	}
	if fx.provider.active() != 0 || fx.gyro.active() != 0 {
		t.Error("denied start must not subscribe")
	}
	if fx.facade.Session().State() != StateIdle {
		t.Errorf("state = %s, want idle", fx.facade.Session().State())
	}
}

func TestFacade_PermissionDeniedTearsDownRunningSession(t *testing.T) {
	perm := &togglePermission{granted: true}
	provider := &fakeProvider{}
	gyro := &fakeGyro{}
	f := New(perm, provider, fakeManager{gyro: gyro}, Options{})
	f.StartSensors(DefaultSessionConfig())

	perm.set(false)
	if err := f.StartSensors(DefaultSessionConfig()); err == nil {
		t.Fatal("expected permission error")
	}
	if provider.active() != 0 || gyro.active() != 0 {
		t.Error("previous subscriptions must be torn down")
	}
}

func TestFacade_MissingGyroscope(t *testing.T) {
	fx := newFixture(t, true, false)
	if err := fx.facade.StartSensors(DefaultSessionConfig()); err != nil {
		t.Fatalf("start must succeed without a gyroscope: %v", err)
	}

	errs := fx.rec.of(EventGyroError)
	if len(errs) != 1 {
		t.Fatalf("got %d gyro errors, want 1", len(errs))
	}
	if e := errs[0].(*sensors.Error); e.Code != sensors.CodeSensorUnavailable {
		t.Errorf("code = %s", e.Code)
	}

	// Location keeps streaming.
	fx.provider.deliver(location.Fix{Time: 7})
	if n := len(fx.rec.of(EventLocationUpdate)); n != 1 {
		t.Errorf("got %d location events, want 1", n)
	}
	if fx.facade.Session().State() != StateActive {
		t.Errorf("state = %s, want active", fx.facade.Session().State())
	}
}

func TestFacade_LocationProviderFailure(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.provider.reqErr = errors.New("no provider")
	err := fx.facade.StartSensors(DefaultSessionConfig())
	if got := sensors.AsError(err); got == nil || got.Code != sensors.CodeLocationError {
		t.Fatalf("got %v, want location_error", err)
	}
	if fx.gyro.active() != 0 {
		t.Error("gyro must not be registered after a failed start")
	}
	if fx.facade.Session().State() != StateIdle {
		t.Errorf("state = %s, want idle", fx.facade.Session().State())
	}
}

func TestFacade_StreamErrorBecomesEvent(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.facade.StartSensors(DefaultSessionConfig())
	fx.provider.fail(errors.New("serial closed"))

	errs := fx.rec.of(EventLocationError)
	if len(errs) != 1 {
		t.Fatalf("got %d location errors, want 1", len(errs))
	}
	e := errs[0].(*sensors.Error)
	if e.Code != sensors.CodeLocationError || e.Message != "serial closed" {
		t.Errorf("got %+v", e)
	}
	if fx.facade.Session().State() != StateActive {
		t.Error("stream errors must not end the session")
	}
}

func TestFacade_StopIsIdempotent(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.facade.StopSensors()
	fx.facade.StartSensors(DefaultSessionConfig())
	fx.facade.StopSensors()
	fx.facade.StopSensors()

	if fx.provider.active() != 0 || fx.gyro.active() != 0 {
		t.Error("stop must remove all subscriptions")
	}
	if fx.facade.Session().State() != StateIdle {
		t.Errorf("state = %s, want idle", fx.facade.Session().State())
	}

	fx.clock.Set(1000)
	fx.gyro.sample(orientation.Sample{})
	fx.provider.deliver(location.Fix{})
	if len(fx.rec.events) != 0 {
		t.Errorf("got events after stop: %v", fx.rec.events)
	}
}

func TestFacade_SetGyroIntervalWhileRunning(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.facade.StartSensors(SessionConfig{LocationIntervalMs: 1000, GyroIntervalMs: 50, LocationAccuracy: location.AccuracyHigh})

	fx.clock.Set(0)
	fx.gyro.sample(orientation.Sample{})
	fx.facade.SetGyroUpdateInterval(200)
	fx.clock.Set(100)
	fx.gyro.sample(orientation.Sample{})
	fx.clock.Set(200)
	fx.gyro.sample(orientation.Sample{})

	if n := len(fx.rec.of(EventGyroUpdate)); n != 2 {
		t.Errorf("got %d gyro events, want 2", n)
	}
	if len(fx.gyro.periods) != 1 {
		t.Errorf("interval change must not re-register, got %d registrations", len(fx.gyro.periods))
	}
	if got := fx.facade.Session().Config().GyroIntervalMs; got != 200 {
		t.Errorf("session interval = %d, want 200", got)
	}
}

func TestFacade_StartWithOptionsKeepsGyroInterval(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.facade.SetGyroUpdateInterval(120)

	acc := "balanced"
	if err := fx.facade.StartSensorsWithOptions(StartOptions{LocationAccuracy: &acc}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cfg := fx.facade.Session().Config()
	if cfg.GyroIntervalMs != 120 {
		t.Errorf("gyro interval = %d, want 120", cfg.GyroIntervalMs)
	}
	if cfg.LocationIntervalMs != DefaultLocationIntervalMs || cfg.LocationAccuracy != location.AccuracyBalanced {
		t.Errorf("unexpected config %+v", cfg)
	}
	if fx.gyro.periods[0] != 120*time.Millisecond {
		t.Errorf("registration period = %s", fx.gyro.periods[0])
	}
}

func TestFacade_ListenerMayStopFromCallback(t *testing.T) {
	fx := newFixture(t, true, false)
	stopped := false
	fx.facade.AddListener(EventGyroError, func(any) {
		fx.facade.StopSensors()
		stopped = true
	})

	done := make(chan struct{})
	go func() {
		fx.facade.StartSensors(DefaultSessionConfig())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("start deadlocked")
	}
	if !stopped || fx.facade.Session().State() != StateIdle {
		t.Error("listener stop was not applied")
	}
}

func TestFacade_ConcurrentStartStop(t *testing.T) {
	fx := newFixture(t, true, true)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			fx.facade.StartSensors(DefaultSessionConfig())
		}()
		go func() {
			defer wg.Done()
			fx.facade.StopSensors()
		}()
	}
	wg.Wait()
	fx.facade.StartSensors(DefaultSessionConfig())

	if fx.provider.active() != 1 || fx.gyro.active() != 1 {
		t.Errorf("leaked subscriptions: location=%d gyro=%d", fx.provider.active(), fx.gyro.active())
	}
}

type togglePermission struct {
	mu      sync.Mutex
	granted bool
}

func (p *togglePermission) LocationGranted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *togglePermission) set(v bool) {
	p.mu.Lock()
	p.granted = v
	p.mu.Unlock()
}

// pausingClock parks the first caller after arm until release is closed.
type pausingClock struct {
	mu      sync.Mutex
	now     time.Time
	pause   chan struct{}
	entered chan struct{}
}

func (c *pausingClock) Now() time.Time {
	c.mu.Lock()
	pause, entered := c.pause, c.entered
	c.pause = nil
	c.mu.Unlock()
	if pause != nil {
		entered <- struct{}{}
		<-pause
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *pausingClock) arm() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pause = make(chan struct{})
	c.entered = make(chan struct{}, 1)
	return c.pause
}

func (c *pausingClock) set(ms int64) {
	c.mu.Lock()
	c.now = time.UnixMilli(ms)
	c.mu.Unlock()
}

func TestFacade_RestartDiscardsInFlightGyroSample(t *testing.T) {
	provider := &fakeProvider{}
	gyro := &fakeGyro{}
	clock := &pausingClock{}
	clock.set(1000)
	f := New(sensors.StaticPermission(true), provider, fakeManager{gyro: gyro}, Options{Clock: clock.Now})
	rec := &recorder{}
	rec.listen(f)

	cfg := SessionConfig{LocationIntervalMs: 1000, GyroIntervalMs: 50, LocationAccuracy: location.AccuracyHigh}
	if err := f.StartSensors(cfg); err != nil {
		t.Fatal(err)
	}

	release := clock.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		gyro.sample(orientation.Sample{X: 99})
	}()
	<-clock.entered

	f.StopSensors()
	if err := f.StartSensors(cfg); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done

	clock.set(1010)
	gyro.sample(orientation.Sample{X: 1})

	got := rec.of(EventGyroUpdate)
	if len(got) != 1 {
		t.Fatalf("got %d gyro events after restart, want 1: %+v", len(got), got)
	}
	if r := got[0].(orientation.Reading); r.X != 1 || r.Timestamp != 1010 {
		t.Errorf("expected the new session's first sample, got %+v", r)
	}
}
