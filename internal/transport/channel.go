// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport carries envelopes between components over three channel
// kinds: HTTP request/response, ZeroMQ streaming, and Kafka queues. Channels
// report delivery as a boolean and keep errors out of the hot path; callers
// that need failure detail use the request-capable interface.
package transport

import (
	"errors"
	"time"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// CHANNEL CONTRACTS
// ============================================================================

// receivePoll is the default blocking interval for Receive when no inbound
// traffic is queued.
const receivePoll = time.Second

var (
	// ErrChannelClosed indicates use of a channel after Close.
	ErrChannelClosed = errors.New("channel closed")

	// ErrNotConnected indicates a send on a channel whose transport link is
	// not established.
	ErrNotConnected = errors.New("channel not connected")

	// ErrTimeout indicates a synchronous wait that expired before a
	// correlated response arrived.
	ErrTimeout = errors.New("timed out waiting for response")
)

// Channel moves envelopes to and from one remote component. Implementations
// never panic across the interface boundary: internal failures surface as a
// false Send result or an unhealthy status.
type Channel interface {
	// Send delivers an envelope, reporting success. Send never blocks past
	// the envelope's timeout.
	Send(env *message.Envelope) bool

	// Receive returns the next inbound envelope, or nil when none arrives
	// within the poll interval (about one second).
	Receive() *message.Envelope

	// Healthy probes the transport link.
	Healthy() bool

	// Close releases the channel's resources. Further sends fail.
	Close() error
}

// RequestChannel is a Channel that supports synchronous request/response
// round trips.
type RequestChannel interface {
	Channel

	// SendAndWait delivers an envelope and blocks for the correlated
	// response, bounded by the envelope's timeout.
	SendAndWait(env *message.Envelope) (*message.Envelope, error)
}

// sendTimeout resolves the effective bound for an envelope send.
func sendTimeout(env *message.Envelope) time.Duration {
	if env.Header.Timeout > 0 {
		return env.Header.Timeout
	}
	return 30 * time.Second
}
