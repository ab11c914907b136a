// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package streaming layers multi-chunk transfers on top of a transport
// channel. Streams are keyed by correlation id and isolated from one another
// and from ordinary request/response traffic on the same channel.
package streaming

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/message"
	"github.com/jeranaias/modmesh/internal/transport"
)

// ============================================================================
// STREAMING COORDINATOR
// ============================================================================

const (
	// streamBufferSize bounds each stream's inbound chunk buffer.
	streamBufferSize = 256

	// chunkPoll bounds how long ReceiveChunk blocks when the buffer is
	// empty.
	chunkPoll = time.Second
)

// Coordinator manages chunked transfers over one channel. All methods are
// safe for concurrent use and report failure as false or nil, never a panic.
type Coordinator struct {
	selfID  string
	channel transport.Channel
	logger  *zap.Logger

	mu      sync.Mutex
	streams map[string]chan map[string]any
}

// NewCoordinator wraps channel for component selfID.
func NewCoordinator(selfID string, channel transport.Channel, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		selfID:  selfID,
		channel: channel,
		logger:  logger,
		streams: make(map[string]chan map[string]any),
	}
}

// StartStream opens stream id toward target: allocates the inbound buffer
// and sends a STREAM_START frame. Starting an already active stream is a
// no-op success.
func (c *Coordinator) StartStream(id, target string) bool {
	c.mu.Lock()
	if _, ok := c.streams[id]; ok {
		c.mu.Unlock()
		return true
	}
	c.streams[id] = make(chan map[string]any, streamBufferSize)
	c.mu.Unlock()

	env := message.NewEnvelope(message.TypeStreamStart, c.selfID, target).WithCorrelation(id)
	if !c.channel.Send(env) {
		c.mu.Lock()
		delete(c.streams, id)
		c.mu.Unlock()
		return false
	}
	return true
}

// SendChunk sends one STREAM_DATA frame on stream id.
func (c *Coordinator) SendChunk(id string, data map[string]any, target string) bool {
	env := message.NewEnvelope(message.TypeStreamData, c.selfID, target).
		WithCorrelation(id).
		WithPayload(data)
	return c.channel.Send(env)
}

// EndStream closes stream id: sends a STREAM_END frame and releases the
// inbound buffer. Ending an unknown or already ended stream is a no-op
// success, and the END frame is only sent once.
func (c *Coordinator) EndStream(id, target string) bool {
	c.mu.Lock()
	buf, ok := c.streams[id]
	if ok {
		delete(c.streams, id)
		close(buf)
	}
	c.mu.Unlock()
	if !ok {
		return true
	}

	env := message.NewEnvelope(message.TypeStreamEnd, c.selfID, target).WithCorrelation(id)
	return c.channel.Send(env)
}

// ReceiveChunk returns the next buffered chunk for stream id, or nil when
// none arrives within the poll interval or the stream is unknown.
func (c *Coordinator) ReceiveChunk(id string) map[string]any {
	c.mu.Lock()
	buf, ok := c.streams[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case data, open := <-buf:
		if !open {
			return nil
		}
		return data
	case <-time.After(chunkPoll):
		return nil
	}
}

// Active reports whether stream id has a live buffer.
func (c *Coordinator) Active(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.streams[id]
	return ok
}

// HandleIncoming routes one inbound stream frame. STREAM_START allocates a
// buffer, STREAM_DATA appends to it, STREAM_END releases it. Chunks for
// unknown or ended streams are dropped. Non-stream envelopes are ignored so
// the coordinator can sit on a shared dispatch path.
func (c *Coordinator) HandleIncoming(env *message.Envelope) {
	if env == nil || !env.Header.Type.IsStream() {
		return
	}
	id := env.Header.CorrelationID

	switch env.Header.Type {
	case message.TypeStreamStart:
		c.mu.Lock()
		if _, ok := c.streams[id]; !ok {
			c.streams[id] = make(chan map[string]any, streamBufferSize)
		}
		c.mu.Unlock()

	case message.TypeStreamData:
		// The buffered send stays under the lock so a concurrent EndStream
		// cannot close the buffer mid-send.
		c.mu.Lock()
		buf, ok := c.streams[id]
		if !ok {
			c.mu.Unlock()
			c.logger.Debug("chunk for inactive stream dropped",
				zap.String("stream_id", id))
			return
		}
		select {
		case buf <- env.Payload:
		default:
			c.logger.Warn("stream buffer full, dropping chunk",
				zap.String("stream_id", id))
		}
		c.mu.Unlock()

	case message.TypeStreamEnd:
		c.mu.Lock()
		if buf, ok := c.streams[id]; ok {
			delete(c.streams, id)
			close(buf)
		}
		c.mu.Unlock()
	}
}
