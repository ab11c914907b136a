// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// HTTP CHANNEL
// ============================================================================

const (
	// maxResponseSize caps response bodies to prevent memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024

	// healthTimeout bounds the liveness probe.
	healthTimeout = 5 * time.Second
)

// sharedHTTPClient pools connections across all HTTP channels.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	// Per-request deadlines come from the envelope timeout via context.
}

// HTTPChannel delivers envelopes to a peer's /v1/process endpoint over HTTP
// and supports synchronous round trips. Responses returned in the HTTP body
// feed an inbox drained by Receive.
type HTTPChannel struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	inbox  chan *message.Envelope
	closed atomic.Bool
}

// NewHTTPChannel builds a channel targeting baseURL (scheme://host:port,
// no trailing slash).
func NewHTTPChannel(baseURL string, logger *zap.Logger) *HTTPChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPChannel{
		baseURL: baseURL,
		client:  sharedHTTPClient,
		logger:  logger,
		inbox:   make(chan *message.Envelope, 256),
	}
}

// Send posts the envelope, reporting success. A correlated response in the
// HTTP body is queued for Receive.
func (c *HTTPChannel) Send(env *message.Envelope) bool {
	resp, err := c.roundTrip(env)
	if err != nil {
		c.logger.Warn("http send failed",
			zap.String("target", env.Header.TargetModule),
			zap.Error(err))
		return false
	}
	if resp != nil {
		c.enqueue(resp)
	}
	return true
}

// SendAndWait posts the envelope and returns the correlated response from
// the HTTP body, bounded by the envelope's timeout.
func (c *HTTPChannel) SendAndWait(env *message.Envelope) (*message.Envelope, error) {
	resp, err := c.roundTrip(env)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrTimeout
	}
	return resp, nil
}

// Receive returns the next queued inbound envelope, or nil after the poll
// interval.
func (c *HTTPChannel) Receive() *message.Envelope {
	select {
	case env := <-c.inbox:
		return env
	case <-time.After(receivePoll):
		return nil
	}
}

// Healthy probes the peer's /health endpoint; any 2xx status is healthy.
func (c *HTTPChannel) Healthy() bool {
	if c.closed.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Close marks the channel closed. The pooled HTTP client is shared and
// stays open.
func (c *HTTPChannel) Close() error {
	c.closed.Store(true)
	return nil
}

// roundTrip performs one POST, translating the HTTP exchange to envelopes.
// A 2xx with an envelope body yields that envelope; an empty 2xx body
// yields (nil, nil).
func (c *HTTPChannel) roundTrip(env *message.Envelope) (*message.Envelope, error) {
	if c.closed.Load() {
		return nil, ErrChannelClosed
	}

	body, err := message.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("envelope encode failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout(env))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/process", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Message-ID", env.Header.MessageID)
	req.Header.Set("X-Source-Module", env.Header.SourceModule)
	req.Header.Set("X-Priority", strconv.Itoa(int(env.Header.Priority)))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("http post failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	reply, err := message.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("response decode failed: %w", err)
	}
	return reply, nil
}

// enqueue stores an inbound envelope, dropping the oldest when the inbox
// is full.
func (c *HTTPChannel) enqueue(env *message.Envelope) {
	for {
		select {
		case c.inbox <- env:
			return
		default:
			select {
			case dropped := <-c.inbox:
				c.logger.Warn("http inbox full, dropping oldest",
					zap.String("message_id", dropped.Header.MessageID))
			default:
			}
		}
	}
}
