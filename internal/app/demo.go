// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

const demoCallTimeout = 10 * time.Second

// inbound is any message from the server: a reply or an event.
type inbound struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *sensors.Error  `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// DemoClient drives a bridge over its WebSocket RPC surface and prints
// what happens.
type DemoClient struct {
	conn   *websocket.Conn
	out    io.Writer
	log    *slog.Logger
	nextID int
	msgs   chan inbound
	errs   chan error

	closeOnce sync.Once
	done      chan struct{} // closed by Close
	stopped   chan struct{} // closed when readLoop returns
}

// DialDemo connects to the bridge at url (ws://host:port/ws).
func DialDemo(ctx context.Context, url string, out io.Writer, log *slog.Logger) (*DemoClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &DemoClient{
		conn: conn,
		out:  out,
		log:  log.With(slog.String("component", "demo")),
		msgs:    make(chan inbound, 64),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *DemoClient) readLoop() {
	defer close(c.stopped)
	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case c.errs <- err:
			case <-c.done:
			}
			return
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}

// Close ends the connection and waits for the reader to exit.
func (c *DemoClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
		<-c.stopped
	})
	return err
}

// Call sends one request and waits for its reply, printing any events
// that arrive meanwhile.
func (c *DemoClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.nextID++
	id := strconv.Itoa(c.nextID)

	req := RPCRequest{ID: json.RawMessage(id), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	timeout := time.NewTimer(demoCallTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, fmt.Errorf("%s: no reply after %s", method, demoCallTimeout)
		case err := <-c.errs:
			return nil, fmt.Errorf("connection lost: %w", err)
		case msg := <-c.msgs:
			if msg.Event != "" {
				c.printEvent(msg)
				continue
			}
			if string(msg.ID) != id {
				continue
			}
			if msg.Error != nil {
				return nil, msg.Error
			}
			return msg.Result, nil
		}
	}
}

// Listen prints events until ctx is done or the connection drops.
func (c *DemoClient) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.errs:
			return fmt.Errorf("connection lost: %w", err)
		case msg := <-c.msgs:
			if msg.Event != "" {
				c.printEvent(msg)
			}
		}
	}
}

func (c *DemoClient) printEvent(msg inbound) {
	v, err := decodeEvent(msg.Event, msg.Data)
	if err != nil {
		c.log.Warn("bad event", slog.String("event", msg.Event), slog.Any("error", err))
		return
	}
	fmt.Fprintln(c.out, formatEvent(msg.Event, v))
}

// RunDemo reports the permission, fetches the current location, starts
// sensors with cfg and prints events until ctx is done, then stops them.
func RunDemo(ctx context.Context, url string, cfg bridge.SessionConfig, out io.Writer, log *slog.Logger) error {
	c, err := DialDemo(ctx, url, out, log)
	if err != nil {
		return err
	}
	defer c.Close()

	raw, err := c.Call(ctx, MethodIsLocationServiceEnabled, nil)
	if err != nil {
		return err
	}
	var enabled bool
	if err := json.Unmarshal(raw, &enabled); err != nil {
		return fmt.Errorf("decode permission: %w", err)
	}
	fmt.Fprintf(out, "location permission: %v\n", enabled)

	raw, err = c.Call(ctx, MethodGetCurrentLocation, nil)
	if err != nil {
		fmt.Fprintf(out, "current location: %v\n", err)
	} else {
		var r location.Reading
		if err := json.Unmarshal(raw, &r); err == nil {
			fmt.Fprintln(out, "current location: "+formatEvent(bridge.EventLocationUpdate, r))
		}
	}

	if _, err := c.Call(ctx, MethodStartSensors, cfg); err != nil {
		return fmt.Errorf("start sensors: %w", err)
	}
	fmt.Fprintln(out, "sensors started, Ctrl+C to stop")

	listenErr := c.Listen(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), demoCallTimeout)
	defer cancel()
	if listenErr == nil {
		if _, err := c.Call(stopCtx, MethodStopSensors, nil); err != nil {
			return fmt.Errorf("stop sensors: %w", err)
		}
		fmt.Fprintln(out, "sensors stopped")
	}
	return listenErr
}
