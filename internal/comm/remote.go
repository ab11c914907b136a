// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package comm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// REMOTE MODULE
// ============================================================================

// RemoteModule adapts a component reachable through a Manager into the
// router's module contract: Process becomes a request/response round trip
// over the component's channel.
type RemoteModule struct {
	selfID  string
	target  string
	mt      message.ModuleType
	manager *Manager
}

// NewRemoteModule builds an adapter for the component named target serving
// module type mt.
func NewRemoteModule(selfID, target string, mt message.ModuleType, manager *Manager) *RemoteModule {
	return &RemoteModule{
		selfID:  selfID,
		target:  target,
		mt:      mt,
		manager: manager,
	}
}

// Process forwards the request over the wire and decodes the peer's
// response. The envelope timeout inherits the request timeout so transport
// waits never outlive the router's own invocation bound.
func (m *RemoteModule) Process(ctx context.Context, req *message.ProcessingRequest) (*message.ProcessingResponse, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("request encode failed: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("request payload build failed: %w", err)
	}

	env := message.NewEnvelope(message.TypeRequest, m.selfID, m.target).
		WithPriority(req.Priority).
		WithPayload(payload)
	if req.Timeout > 0 {
		env.Header.Timeout = req.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		// An expired deadline must fail fast, not fall back to the
		// transport default.
		if remaining < time.Millisecond {
			remaining = time.Millisecond
		}
		if remaining < env.Header.Timeout {
			env.Header.Timeout = remaining
		}
	}

	reply, err := m.manager.SendRequest(env)
	if err != nil {
		return nil, fmt.Errorf("remote module %s: %w", m.target, err)
	}

	raw, err = json.Marshal(reply.Payload)
	if err != nil {
		return nil, fmt.Errorf("response payload encode failed: %w", err)
	}
	var resp message.ProcessingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("response decode failed: %w", err)
	}
	if resp.QueryID == "" {
		resp.QueryID = req.QueryID
	}
	return &resp, nil
}

// Health probes the component's channel.
func (m *RemoteModule) Health() message.HealthStatus {
	ch, err := m.manager.channelFor(m.target)
	if err != nil {
		return message.HealthUnavailable
	}
	if !m.manager.probe(m.target, ch) {
		return message.HealthUnavailable
	}
	return message.HealthHealthy
}

// Capabilities describes the remote component.
func (m *RemoteModule) Capabilities() message.ModuleDescriptor {
	return message.ModuleDescriptor{
		Type:   m.mt,
		Health: m.Health(),
	}
}
