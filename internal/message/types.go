// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// MESSAGE TYPE
// ============================================================================

// Type represents the kind of traffic an envelope carries.
type Type int

const (
	// TypeRequest is an ordinary processing request.
	TypeRequest Type = iota
	// TypeResponse answers a prior request (correlation id required).
	TypeResponse
	// TypeStreamStart opens a chunked transfer (correlation id required).
	TypeStreamStart
	// TypeStreamData carries one chunk of a stream (correlation id required).
	TypeStreamData
	// TypeStreamEnd closes a chunked transfer (correlation id required).
	TypeStreamEnd
	// TypeHealthCheck probes a component for liveness.
	TypeHealthCheck
	// TypeCapabilityQuery asks a component for its capability descriptor.
	TypeCapabilityQuery
	// TypeError reports a transport- or component-level failure.
	TypeError
	// TypeHeartbeat is a periodic liveness signal.
	TypeHeartbeat
)

// typeTokens maps each Type to its stable wire token.
var typeTokens = map[Type]string{
	TypeRequest:         "REQUEST",
	TypeResponse:        "RESPONSE",
	TypeStreamStart:     "STREAM_START",
	TypeStreamData:      "STREAM_DATA",
	TypeStreamEnd:       "STREAM_END",
	TypeHealthCheck:     "HEALTH_CHECK",
	TypeCapabilityQuery: "CAPABILITY_QUERY",
	TypeError:           "ERROR",
	TypeHeartbeat:       "HEARTBEAT",
}

// String returns the stable wire token for the type.
func (t Type) String() string {
	if s, ok := typeTokens[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsStream returns true for the three stream frame types.
func (t Type) IsStream() bool {
	return t == TypeStreamStart || t == TypeStreamData || t == TypeStreamEnd
}

// RequiresCorrelation returns true if envelopes of this type must carry a
// correlation id linking them back to an originating request or stream.
func (t Type) RequiresCorrelation() bool {
	return t == TypeResponse || t.IsStream()
}

// ParseType converts a wire token back to its Type.
func ParseType(s string) (Type, error) {
	for t, token := range typeTokens {
		if token == s {
			return t, nil
		}
	}
	return TypeError, fmt.Errorf("unknown message type token %q", s)
}

// ============================================================================
// PRIORITY
// ============================================================================

// Priority orders envelopes and requests from Low (1) to Critical (5).
// The integer values are the wire encoding.
type Priority int

const (
	// PriorityLow is background traffic.
	PriorityLow Priority = iota + 1
	// PriorityNormal is the default for ordinary requests.
	PriorityNormal
	// PriorityHigh is elevated traffic.
	PriorityHigh
	// PriorityUrgent is near-critical traffic.
	PriorityUrgent
	// PriorityCritical requires an explicit permission grant to send.
	PriorityCritical
)

// String returns the human-readable name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	case PriorityCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Valid returns true if the priority lies in the 1..5 wire range.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ============================================================================
// HEADER AND ENVELOPE
// ============================================================================

// Validation errors returned by Envelope.Validate.
var (
	// ErrMissingMessageID indicates an empty message id.
	ErrMissingMessageID = errors.New("envelope missing message id")

	// ErrMissingAddress indicates an empty source or target module id.
	ErrMissingAddress = errors.New("envelope missing source or target module")

	// ErrMissingCorrelation indicates a RESPONSE or STREAM_* envelope without
	// a correlation id.
	ErrMissingCorrelation = errors.New("correlation id required for response and stream envelopes")

	// ErrRetryExceeded indicates retry_count > max_retries.
	ErrRetryExceeded = errors.New("retry count exceeds max retries")

	// ErrInvalidPriority indicates a priority outside the 1..5 range.
	ErrInvalidPriority = errors.New("priority must be between Low (1) and Critical (5)")
)

// Header carries identity, addressing, and delivery bookkeeping for an
// envelope. A header is created once per send and never mutated in flight,
// except for RetryCount which the sender may bump between attempts.
type Header struct {
	// MessageID is globally unique, generated at construction.
	MessageID string

	// Type is the message type.
	Type Type

	// SourceModule and TargetModule are component ids.
	SourceModule string
	TargetModule string

	// CorrelationID links a response to its request or a stream frame to its
	// stream. Empty for types that do not require correlation.
	CorrelationID string

	// Timestamp is the creation time (UTC).
	Timestamp time.Time

	// Priority orders delivery. Critical requires an explicit grant.
	Priority Priority

	// Timeout bounds synchronous waits on this envelope.
	Timeout time.Duration

	// RetryCount / MaxRetries track delivery attempts. Invariant:
	// RetryCount <= MaxRetries.
	RetryCount int
	MaxRetries int
}

// Envelope is the unit of transport between components: a header plus an
// opaque payload and freeform metadata. The transport layer never interprets
// either map.
type Envelope struct {
	Header   Header
	Payload  map[string]any
	Metadata map[string]any
}

// NewEnvelope builds an envelope with a fresh message id, the current UTC
// timestamp, Normal priority, a 30-second timeout, and 3 max retries.
func NewEnvelope(t Type, source, target string) *Envelope {
	return &Envelope{
		Header: Header{
			MessageID:    uuid.NewString(),
			Type:         t,
			SourceModule: source,
			TargetModule: target,
			Timestamp:    time.Now().UTC(),
			Priority:     PriorityNormal,
			Timeout:      30 * time.Second,
			MaxRetries:   3,
		},
		Payload:  make(map[string]any),
		Metadata: make(map[string]any),
	}
}

// WithCorrelation sets the correlation id and returns the envelope.
func (e *Envelope) WithCorrelation(id string) *Envelope {
	e.Header.CorrelationID = id
	return e
}

// WithPriority sets the priority and returns the envelope.
func (e *Envelope) WithPriority(p Priority) *Envelope {
	e.Header.Priority = p
	return e
}

// WithPayload replaces the payload map and returns the envelope.
func (e *Envelope) WithPayload(payload map[string]any) *Envelope {
	e.Payload = payload
	return e
}

// Validate checks the header invariants. Envelopes failing validation are
// rejected at ingress and never retried.
func (e *Envelope) Validate() error {
	if e.Header.MessageID == "" {
		return ErrMissingMessageID
	}
	if e.Header.SourceModule == "" || e.Header.TargetModule == "" {
		return ErrMissingAddress
	}
	if e.Header.Type.RequiresCorrelation() && e.Header.CorrelationID == "" {
		return ErrMissingCorrelation
	}
	if e.Header.RetryCount > e.Header.MaxRetries {
		return ErrRetryExceeded
	}
	if !e.Header.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// Reply builds a RESPONSE envelope addressed back to the source of e,
// correlated to e's message id.
func (e *Envelope) Reply(source string) *Envelope {
	r := NewEnvelope(TypeResponse, source, e.Header.SourceModule)
	r.Header.CorrelationID = e.Header.MessageID
	r.Header.Priority = e.Header.Priority
	return r
}
