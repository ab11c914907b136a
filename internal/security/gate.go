// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security gates every message crossing a component boundary:
// credential authentication, per-source sliding-window rate limiting,
// priority-based authorization, and optional payload encryption.
package security

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// ERRORS
// ============================================================================

var (
	// ErrMissingAPIKey indicates credentials without an api_key field.
	ErrMissingAPIKey = errors.New("missing api_key")

	// ErrMissingComponentType indicates credentials without a component_type field.
	ErrMissingComponentType = errors.New("missing component_type")

	// ErrInvalidAPIKey indicates the presented key did not match the shared key.
	ErrInvalidAPIKey = errors.New("invalid api_key")

	// ErrNotAuthenticated indicates authorization for a source that never
	// completed authentication.
	ErrNotAuthenticated = errors.New("component not authenticated")

	// ErrRateLimited indicates the per-source sliding window is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrPermissionDenied indicates a priority level the source's permission
	// set does not cover.
	ErrPermissionDenied = errors.New("permission denied")
)

// PermCriticalOperations gates CRITICAL-priority traffic.
const PermCriticalOperations = "critical_operations"

// encryptedMarker flags a wrapped payload on the wire.
const encryptedMarker = "encrypted"

// ============================================================================
// GATE
// ============================================================================

// session records a successfully authenticated component.
type session struct {
	ComponentType string
	Permissions   map[string]bool
	Timestamp     time.Time
}

// Gate authenticates components and authorizes individual sends. All methods
// are safe for concurrent use.
type Gate struct {
	mu            sync.RWMutex
	authenticated map[string]*session

	limiter  *RateLimiter
	throttle *rate.Limiter // optional global send pacing
	cipher   Cipher        // nil means pass-through
	sharedKey string       // empty disables key comparison
}

// Option configures a Gate.
type Option func(*Gate)

// WithRateLimiter replaces the default 1000 req/min limiter.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(g *Gate) { g.limiter = rl }
}

// WithCipher enables payload encryption.
func WithCipher(c Cipher) Option {
	return func(g *Gate) { g.cipher = c }
}

// WithSharedKey requires every api_key to match key exactly.
func WithSharedKey(key string) Option {
	return func(g *Gate) { g.sharedKey = key }
}

// WithThrottle caps the aggregate authorize rate across all sources.
func WithThrottle(perSecond float64, burst int) Option {
	return func(g *Gate) { g.throttle = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewGate builds a Gate with the default rate limiter and no cipher.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		authenticated: make(map[string]*session),
		limiter:       DefaultRateLimiter(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate validates the credential map for componentID and records the
// session. Credentials must carry api_key and component_type; any
// "permissions" entry is a comma-free list of grants.
func (g *Gate) Authenticate(componentID string, credentials map[string]any) error {
	apiKey, ok := credentials["api_key"].(string)
	if !ok || apiKey == "" {
		return ErrMissingAPIKey
	}
	componentType, ok := credentials["component_type"].(string)
	if !ok || componentType == "" {
		return ErrMissingComponentType
	}
	if g.sharedKey != "" {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(g.sharedKey)) != 1 {
			return ErrInvalidAPIKey
		}
	}

	perms := make(map[string]bool)
	if raw, ok := credentials["permissions"].([]string); ok {
		for _, p := range raw {
			perms[p] = true
		}
	}
	// JSON-decoded credentials arrive as []any.
	if raw, ok := credentials["permissions"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				perms[s] = true
			}
		}
	}

	g.mu.Lock()
	g.authenticated[componentID] = &session{
		ComponentType: componentType,
		Permissions:   perms,
		Timestamp:     time.Now().UTC(),
	}
	g.mu.Unlock()
	return nil
}

// Authorize admits or rejects a single send from componentID. Rejections are
// one of ErrNotAuthenticated, ErrRateLimited, or ErrPermissionDenied.
//
// The checks run in a fixed order: session, sliding window, priority
// permission. A rate-limited request is counted against the window whether
// or not the later permission check would also have rejected it.
func (g *Gate) Authorize(componentID string, priority message.Priority) error {
	g.mu.RLock()
	sess, ok := g.authenticated[componentID]
	g.mu.RUnlock()
	if !ok {
		return ErrNotAuthenticated
	}

	if g.throttle != nil && !g.throttle.Allow() {
		return ErrRateLimited
	}
	if !g.limiter.Allow(componentID) {
		return ErrRateLimited
	}

	if priority == message.PriorityCritical && !sess.Permissions[PermCriticalOperations] {
		return ErrPermissionDenied
	}
	return nil
}

// Authenticated reports whether componentID holds a live session.
func (g *Gate) Authenticated(componentID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.authenticated[componentID]
	return ok
}

// Encrypting reports whether a cipher is configured.
func (g *Gate) Encrypting() bool {
	return g.cipher != nil
}

// Revoke drops a component's session. Subsequent sends fail authorization
// until the component authenticates again.
func (g *Gate) Revoke(componentID string) {
	g.mu.Lock()
	delete(g.authenticated, componentID)
	g.mu.Unlock()
}

// ============================================================================
// PAYLOAD WRAPPING
// ============================================================================

// envelopePayload is the wire shape of an encrypted payload.
type envelopePayload struct {
	Encrypted bool   `json:"encrypted"`
	Data      string `json:"data"`
}

// Encrypt wraps payload under an encrypted marker when a cipher is
// configured. Without one the payload is returned unchanged.
func (g *Gate) Encrypt(payload []byte) ([]byte, error) {
	if g.cipher == nil {
		return payload, nil
	}
	sealed, err := g.cipher.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("payload encryption failed: %w", err)
	}
	return json.Marshal(envelopePayload{Encrypted: true, Data: string(sealed)})
}

// Decrypt unwraps a payload produced by Encrypt. Payloads without the
// encrypted marker pass through unchanged, so mixed deployments where only
// some peers encrypt remain interoperable.
func (g *Gate) Decrypt(payload []byte) ([]byte, error) {
	var wrapped envelopePayload
	if err := json.Unmarshal(payload, &wrapped); err != nil || !wrapped.Encrypted {
		return payload, nil
	}
	if g.cipher == nil {
		return nil, errors.New("encrypted payload received with no cipher configured")
	}
	plain, err := g.cipher.Decrypt([]byte(wrapped.Data))
	if err != nil {
		return nil, fmt.Errorf("payload decryption failed: %w", err)
	}
	return plain, nil
}
