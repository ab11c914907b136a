// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package comm coordinates outbound and inbound envelope traffic: it owns
// the named transport channels, the component routing table, and the
// per-message-type handlers, with every envelope passing through the
// security gate in both directions.
package comm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/message"
	"github.com/jeranaias/modmesh/internal/security"
	"github.com/jeranaias/modmesh/internal/transport"
)

// ============================================================================
// COMMUNICATION MANAGER
// ============================================================================

var (
	// ErrNoRoute indicates a target component with no routing table entry.
	ErrNoRoute = errors.New("no route to component")

	// ErrNotRequestCapable indicates a synchronous request over a channel
	// that cannot wait for responses.
	ErrNotRequestCapable = errors.New("channel does not support request/response")

	// ErrUnauthorized indicates the gate rejected the send.
	ErrUnauthorized = errors.New("send rejected by security gate")
)

// Handler consumes one inbound envelope of a registered type.
type Handler func(env *message.Envelope)

// Manager routes envelopes between components. All methods are safe for
// concurrent use.
type Manager struct {
	selfID string
	gate   *security.Gate
	logger *zap.Logger

	mu       sync.RWMutex
	channels map[string]transport.Channel // channel id → channel
	routes   map[string]string            // component id → channel id
	handlers map[message.Type]Handler
}

// NewManager builds a Manager for component selfID behind gate.
func NewManager(selfID string, gate *security.Gate, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		selfID:   selfID,
		gate:     gate,
		logger:   logger,
		channels: make(map[string]transport.Channel),
		routes:   make(map[string]string),
		handlers: make(map[message.Type]Handler),
	}
}

// RegisterChannel adds a named channel.
func (m *Manager) RegisterChannel(id string, ch transport.Channel) {
	m.mu.Lock()
	m.channels[id] = ch
	m.mu.Unlock()
}

// SetRoute directs traffic for component to the named channel.
func (m *Manager) SetRoute(component, channelID string) {
	m.mu.Lock()
	m.routes[component] = channelID
	m.mu.Unlock()
}

// HasRoute reports whether traffic for component has a channel assigned.
func (m *Manager) HasRoute(component string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.routes[component]
	return ok
}

// RegisterHandler sets the consumer for inbound envelopes of type t.
// Registering again replaces the previous handler.
func (m *Manager) RegisterHandler(t message.Type, h Handler) {
	m.mu.Lock()
	m.handlers[t] = h
	m.mu.Unlock()
}

// channelFor resolves the channel serving a target component.
func (m *Manager) channelFor(component string) (transport.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channelID, ok := m.routes[component]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, component)
	}
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s (channel %s unregistered)", ErrNoRoute, component, channelID)
	}
	return ch, nil
}

// Send delivers an envelope one-way: authorize, encrypt, route, send.
// A gate rejection or missing route returns false without sending.
func (m *Manager) Send(env *message.Envelope) bool {
	if err := m.gate.Authorize(env.Header.SourceModule, env.Header.Priority); err != nil {
		m.logger.Warn("send rejected",
			zap.String("source", env.Header.SourceModule),
			zap.String("target", env.Header.TargetModule),
			zap.Error(err))
		return false
	}

	if err := m.encryptPayload(env); err != nil {
		m.logger.Error("payload encryption failed",
			zap.String("message_id", env.Header.MessageID),
			zap.Error(err))
		return false
	}

	ch, err := m.channelFor(env.Header.TargetModule)
	if err != nil {
		m.logger.Warn("send failed", zap.Error(err))
		return false
	}
	return ch.Send(env)
}

// SendRequest delivers an envelope and waits for the correlated response,
// decrypting it before returning.
func (m *Manager) SendRequest(env *message.Envelope) (*message.Envelope, error) {
	if err := m.gate.Authorize(env.Header.SourceModule, env.Header.Priority); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err := m.encryptPayload(env); err != nil {
		return nil, err
	}

	ch, err := m.channelFor(env.Header.TargetModule)
	if err != nil {
		return nil, err
	}
	rc, ok := ch.(transport.RequestChannel)
	if !ok {
		return nil, ErrNotRequestCapable
	}

	resp, err := rc.SendAndWait(env)
	if err != nil {
		return nil, err
	}
	if err := m.decryptPayload(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DispatchIncoming decrypts an inbound envelope and invokes the handler
// registered for its type. Envelopes with no handler are logged and
// dropped. Dispatch never panics; handler panics are contained.
func (m *Manager) DispatchIncoming(env *message.Envelope) {
	if env == nil {
		return
	}
	if err := m.decryptPayload(env); err != nil {
		m.logger.Warn("inbound payload decryption failed, dropping",
			zap.String("message_id", env.Header.MessageID),
			zap.Error(err))
		return
	}

	m.mu.RLock()
	handler, ok := m.handlers[env.Header.Type]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("no handler for message type, dropping",
			zap.String("type", env.Header.Type.String()),
			zap.String("message_id", env.Header.MessageID))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("handler panic contained",
				zap.String("type", env.Header.Type.String()),
				zap.Any("panic", r))
		}
	}()
	handler(env)
}

// HealthCheckAll probes every registered channel. A panicking probe records
// false for that channel and the sweep continues.
func (m *Manager) HealthCheckAll() map[string]bool {
	m.mu.RLock()
	channels := make(map[string]transport.Channel, len(m.channels))
	for id, ch := range m.channels {
		channels[id] = ch
	}
	m.mu.RUnlock()

	results := make(map[string]bool, len(channels))
	for id, ch := range channels {
		results[id] = m.probe(id, ch)
	}
	return results
}

// probe calls one channel's health check with panic containment.
func (m *Manager) probe(id string, ch transport.Channel) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health probe panic contained",
				zap.String("channel", id),
				zap.Any("panic", r))
			healthy = false
		}
	}()
	return ch.Healthy()
}

// Heartbeat emits a HEARTBEAT envelope to target. Heartbeats skip
// encryption: they carry no payload worth protecting and must stay cheap.
func (m *Manager) Heartbeat(target string) bool {
	if err := m.gate.Authorize(m.selfID, message.PriorityLow); err != nil {
		return false
	}
	ch, err := m.channelFor(target)
	if err != nil {
		return false
	}
	env := message.NewEnvelope(message.TypeHeartbeat, m.selfID, target).
		WithPriority(message.PriorityLow)
	return ch.Send(env)
}

// Close shuts down every registered channel, returning the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for id, ch := range m.channels {
		if err := ch.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing channel %s: %w", id, err)
		}
	}
	return first
}

// ============================================================================
// PAYLOAD CRYPTO
// ============================================================================

// encryptPayload wraps the envelope payload through the gate's cipher.
// Without a cipher the payload is untouched.
func (m *Manager) encryptPayload(env *message.Envelope) error {
	if !m.gate.Encrypting() || len(env.Payload) == 0 {
		return nil
	}
	plain, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("payload encode failed: %w", err)
	}
	sealed, err := m.gate.Encrypt(plain)
	if err != nil {
		return err
	}
	var wrapped map[string]any
	if err := json.Unmarshal(sealed, &wrapped); err != nil {
		return fmt.Errorf("sealed payload decode failed: %w", err)
	}
	env.Payload = wrapped
	return nil
}

// decryptPayload unwraps a payload carrying the encrypted marker. Payloads
// without the marker pass through unchanged.
func (m *Manager) decryptPayload(env *message.Envelope) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if enc, ok := env.Payload["encrypted"].(bool); !ok || !enc {
		return nil
	}
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("payload encode failed: %w", err)
	}
	plain, err := m.gate.Decrypt(raw)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(plain, &payload); err != nil {
		return fmt.Errorf("decrypted payload decode failed: %w", err)
	}
	env.Payload = payload
	return nil
}
