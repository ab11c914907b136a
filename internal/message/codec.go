// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// WIRE CODEC
// ============================================================================

// wireTimeFormat is the textual timestamp format used on the wire.
// RFC 3339 with nanoseconds; timestamps always normalize to UTC.
const wireTimeFormat = time.RFC3339Nano

// wireHeader is the JSON shape of a Header. Enum values use their stable
// string/int tokens and the timeout travels as float seconds.
type wireHeader struct {
	MessageID     string  `json:"message_id"`
	MessageType   string  `json:"message_type"`
	SourceModule  string  `json:"source_module"`
	TargetModule  string  `json:"target_module"`
	CorrelationID *string `json:"correlation_id"`
	Timestamp     string  `json:"timestamp"`
	Priority      int     `json:"priority"`
	Timeout       float64 `json:"timeout"`
	RetryCount    int     `json:"retry_count"`
	MaxRetries    int     `json:"max_retries"`
}

// wireEnvelope is the JSON shape of an Envelope.
type wireEnvelope struct {
	Header   wireHeader     `json:"header"`
	Payload  map[string]any `json:"payload"`
	Metadata map[string]any `json:"metadata"`
}

// Marshal serializes an envelope to its JSON wire format.
func Marshal(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal nil envelope")
	}

	wh := wireHeader{
		MessageID:    e.Header.MessageID,
		MessageType:  e.Header.Type.String(),
		SourceModule: e.Header.SourceModule,
		TargetModule: e.Header.TargetModule,
		Timestamp:    e.Header.Timestamp.UTC().Format(wireTimeFormat),
		Priority:     int(e.Header.Priority),
		Timeout:      e.Header.Timeout.Seconds(),
		RetryCount:   e.Header.RetryCount,
		MaxRetries:   e.Header.MaxRetries,
	}
	if e.Header.CorrelationID != "" {
		cid := e.Header.CorrelationID
		wh.CorrelationID = &cid
	}

	return json.Marshal(wireEnvelope{
		Header:   wh,
		Payload:  e.Payload,
		Metadata: e.Metadata,
	})
}

// Unmarshal parses JSON wire data back into an Envelope. The result is
// validated; malformed envelopes are rejected here, at ingress.
func Unmarshal(data []byte) (*Envelope, error) {
	var we wireEnvelope
	if err := json.Unmarshal(data, &we); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	t, err := ParseType(we.Header.MessageType)
	if err != nil {
		return nil, err
	}

	ts, err := time.Parse(wireTimeFormat, we.Header.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("malformed envelope timestamp: %w", err)
	}

	e := &Envelope{
		Header: Header{
			MessageID:    we.Header.MessageID,
			Type:         t,
			SourceModule: we.Header.SourceModule,
			TargetModule: we.Header.TargetModule,
			Timestamp:    ts.UTC(),
			Priority:     Priority(we.Header.Priority),
			Timeout:      time.Duration(we.Header.Timeout * float64(time.Second)),
			RetryCount:   we.Header.RetryCount,
			MaxRetries:   we.Header.MaxRetries,
		},
		Payload:  we.Payload,
		Metadata: we.Metadata,
	}
	if we.Header.CorrelationID != nil {
		e.Header.CorrelationID = *we.Header.CorrelationID
	}
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
