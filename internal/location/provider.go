// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"time"
)

// Request describes a continuous update subscription.
type Request struct {
	Priority Priority
	// Interval is the minimum time between two delivered fixes.
	Interval time.Duration
}

// Listener receives updates from a Provider. Calls for one registration
// are serialized; a batch holds fixes in arrival order.
type Listener struct {
	OnLocations func(fixes []Fix)
	OnError     func(err error)
}

// Provider is the platform location service.
type Provider interface {
	// RequestUpdates starts continuous delivery to l until cancel is called.
	RequestUpdates(req Request, l Listener) (cancel func(), err error)
	// LastLocation returns the most recent cached fix, or nil when the
	// provider has none.
	LastLocation(ctx context.Context) (*Fix, error)
}
