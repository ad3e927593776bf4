// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/event"
)

// Metrics holds the bridge collectors.
type Metrics struct {
	events        *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	subs          []*event.Subscription
}

// New registers the bridge collectors on reg and starts counting the
// facade's events.
func New(reg prometheus.Registerer, f *bridge.Facade) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensors_bridge_events_total",
			Help: "Events emitted by the bridge, by event name.",
		}, []string{"event"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensors_bridge_publish_errors_total",
			Help: "Events that could not be forwarded to an outer sink.",
		}, []string{"sink"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensors_bridge_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"route", "status"}),
	}

	gate := f.Session().Gate()
	reg.MustRegister(
		m.events,
		m.publishErrors,
		m.httpRequests,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "sensors_bridge_gyro_samples_forwarded_total",
			Help: "Gyroscope samples that passed the throttle.",
		}, func() float64 { return float64(gate.Forwarded()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "sensors_bridge_gyro_samples_dropped_total",
			Help: "Gyroscope samples suppressed by the throttle.",
		}, func() float64 { return float64(gate.Dropped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sensors_bridge_session_active",
			Help: "1 while a sensor session is active.",
		}, func() float64 {
			if f.Session().State() == bridge.StateActive {
				return 1
			}
			return 0
		}),
	)

	for _, name := range bridge.EventNames {
		counter := m.events.WithLabelValues(name)
		m.subs = append(m.subs, f.AddListener(name, func(any) { counter.Inc() }))
	}
	return m
}

// PublishFailed counts one event a sink could not deliver.
func (m *Metrics) PublishFailed(sink string) {
	m.publishErrors.WithLabelValues(sink).Inc()
}

// Close stops counting events.
func (m *Metrics) Close() {
	for _, s := range m.subs {
		s.Remove()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests served by next under the given route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
