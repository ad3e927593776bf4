// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

// RPC method names, shared by the WebSocket surface and the demo client.
const (
	MethodIsLocationServiceEnabled = "isLocationServiceEnabled"
	MethodGetCurrentLocation       = "getCurrentLocation"
	MethodStartSensors             = "startSensors"
	MethodStopSensors              = "stopSensors"
	MethodSetGyroUpdateInterval    = "setGyroUpdateInterval"
)

// CodeInvalidRequest rejects malformed calls and unknown methods.
const CodeInvalidRequest sensors.Code = "invalid_request"

// RPCRequest is one call on the WebSocket surface.
type RPCRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResult struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
}

type rpcFailure struct {
	ID    json.RawMessage `json:"id"`
	Error *sensors.Error  `json:"error"`
}

// IntervalParams is the body of setGyroUpdateInterval.
type IntervalParams struct {
	Ms int `json:"ms"`
}

func invalidRequest(format string, args ...any) *sensors.Error {
	return sensors.NewError(CodeInvalidRequest, fmt.Sprintf(format, args...))
}

// call runs one facade operation by method name.
func call(ctx context.Context, f *bridge.Facade, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodIsLocationServiceEnabled:
		return f.IsLocationServiceEnabled(), nil

	case MethodGetCurrentLocation:
		return f.GetCurrentLocation(ctx)

	case MethodStartSensors:
		var opts bridge.StartOptions
		if !emptyParams(params) {
			if err := json.Unmarshal(params, &opts); err != nil {
				return nil, invalidRequest("invalid config: %v", err)
			}
		}
		return nil, f.StartSensorsWithOptions(opts)

	case MethodStopSensors:
		f.StopSensors()
		return nil, nil

	case MethodSetGyroUpdateInterval:
		ms, err := parseInterval(params)
		if err != nil {
			return nil, err
		}
		f.SetGyroUpdateInterval(ms)
		return nil, nil
	}
	return nil, invalidRequest("unknown method %q", method)
}

func emptyParams(params json.RawMessage) bool {
	p := bytes.TrimSpace(params)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

// parseInterval accepts either a bare integer or {"ms": integer}.
func parseInterval(params json.RawMessage) (int, error) {
	if emptyParams(params) {
		return 0, invalidRequest("missing interval")
	}
	var ms int
	if err := json.Unmarshal(params, &ms); err == nil {
		return ms, nil
	}
	var p IntervalParams
	if err := json.Unmarshal(params, &p); err != nil {
		return 0, invalidRequest("invalid interval: %v", err)
	}
	return p.Ms, nil
}

func respond(id json.RawMessage, result any, err error) any {
	if err != nil {
		return rpcFailure{ID: id, Error: sensors.AsError(err)}
	}
	return rpcResult{ID: id, Result: result}
}
