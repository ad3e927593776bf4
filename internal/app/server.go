// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/metrics"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

const (
	wsSendBuffer   = 256
	wsWriteTimeout = 5 * time.Second
)

// Server exposes a facade over HTTP and WebSocket.
type Server struct {
	facade   *bridge.Facade
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the HTTP surface. m and g may be nil to disable
// request counting and /metrics.
func NewServer(f *bridge.Facade, m *metrics.Metrics, g prometheus.Gatherer, log *slog.Logger) *Server {
	return &Server{
		facade:   f,
		metrics:  m,
		gatherer: g,
		log:      log.With(slog.String("component", "http")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	s.handle(r, "/health", s.handleHealth, http.MethodGet)
	s.handle(r, "/api/permission", s.handlePermission, http.MethodGet)
	s.handle(r, "/api/location", s.handleLocation, http.MethodGet)
	s.handle(r, "/api/sensors/start", s.handleStart, http.MethodPost)
	s.handle(r, "/api/sensors/stop", s.handleStop, http.MethodPost)
	s.handle(r, "/api/gyro/interval", s.handleInterval, http.MethodPut)
	s.handle(r, "/api/session", s.handleSession, http.MethodGet)

	// Not wrapped: the upgrade needs the raw ResponseWriter.
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handle(r *mux.Router, path string, fn http.HandlerFunc, method string) {
	var h http.Handler = fn
	if s.metrics != nil {
		h = s.metrics.WrapHandler(path, h)
	}
	r.Handle(path, h).Methods(method)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.facade.IsLocationServiceEnabled()})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	reading, err := s.facade.GetCurrentLocation(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var opts bridge.StartOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, invalidRequest("invalid config: %v", err))
		return
	}
	if err := s.facade.StartSensorsWithOptions(opts); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSession(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.facade.StopSensors()
	s.writeSession(w)
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	var p IntervalParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, invalidRequest("invalid interval: %v", err))
		return
	}
	s.facade.SetGyroUpdateInterval(p.Ms)
	s.writeSession(w)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w)
}

// SessionView is the JSON shape of the session.
type SessionView struct {
	State  bridge.State         `json:"state"`
	Config bridge.SessionConfig `json:"config"`
}

func (s *Server) writeSession(w http.ResponseWriter) {
	sess := s.facade.Session()
	s.writeJSON(w, http.StatusOK, SessionView{State: sess.State(), Config: sess.Config()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("json encode error", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	e := sensors.AsError(err)
	s.writeJSON(w, statusFor(e.Code), e)
}

func statusFor(code sensors.Code) int {
	switch code {
	case sensors.CodePermissionDenied:
		return http.StatusForbidden
	case sensors.CodeLocationUnavailable:
		return http.StatusNotFound
	case sensors.CodeSensorUnavailable:
		return http.StatusServiceUnavailable
	case CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// handleWS serves the RPC surface. Each connection gets its own event
// listeners, removed when the connection ends.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", slog.Any("error", err))
		return
	}

	c := &wsConn{
		id:   uuid.New().String(),
		ws:   conn,
		send: make(chan any, wsSendBuffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log:  s.log.With(slog.String("component", "rpc")),
	}
	c.log = c.log.With(slog.String("conn", c.id))
	c.log.Info("client connected", slog.String("remote", r.RemoteAddr))

	go c.writeLoop()
	subs := listenAll(s.facade.Events(), c.pushEvent)
	defer func() {
		removeAll(subs)
		close(c.quit)
		<-c.done
		conn.Close()
		c.log.Info("client disconnected")
	}()

	for {
		var req RPCRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", slog.Any("error", err))
			}
			return
		}
		result, err := call(r.Context(), s.facade, req.Method, req.Params)
		c.log.Debug("rpc", slog.String("method", req.Method), slog.Bool("ok", err == nil))
		if !c.reply(respond(req.ID, result, err)) {
			return
		}
	}
}

// wsConn serializes writes to one WebSocket through a single goroutine.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan any
	quit chan struct{} // closed when the reader exits
	done chan struct{} // closed when the writer exits
	log  *slog.Logger
}

func (c *wsConn) writeLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Warn("websocket write error", slog.Any("error", err))
				c.ws.Close()
				return
			}
		}
	}
}

func (c *wsConn) reply(msg any) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

// pushEvent never blocks the sensor path; a slow client loses events.
func (c *wsConn) pushEvent(name string, payload any) {
	select {
	case c.send <- Envelope{Event: name, Data: payload}:
	case <-c.done:
	default:
		c.log.Debug("send buffer full, dropping event", slog.String("event", name))
	}
}
