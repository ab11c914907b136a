// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// STREAM CHANNEL STATE
// ============================================================================

// StreamState tracks the lifecycle of a streaming channel's socket.
type StreamState int

const (
	// StreamDisconnected means no socket exists.
	StreamDisconnected StreamState = iota
	// StreamConnecting means Connect is in progress.
	StreamConnecting
	// StreamConnected means the DEALER socket is live.
	StreamConnected
	// StreamClosing means Close is tearing the socket down.
	StreamClosing
)

// String returns the state name.
func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamClosing:
		return "closing"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// ============================================================================
// STREAM CHANNEL
// ============================================================================

// recvTimeout bounds each receive attempt so the loop can observe shutdown.
const recvTimeout = 100 * time.Millisecond

// StreamChannel moves stream frames over a ZeroMQ DEALER socket. A
// background loop drains the socket into a bounded inbox; Receive reads
// from the inbox. ZeroMQ sockets are not safe for concurrent use, so send
// and receive share sockMu with a short receive timeout to keep sends from
// starving.
type StreamChannel struct {
	endpoint string
	identity string
	logger   *zap.Logger

	mu    sync.Mutex // guards state transitions
	state StreamState

	sockMu sync.Mutex // serializes socket operations
	sock   *zmq.Socket

	inbox chan *message.Envelope
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewStreamChannel builds a channel for endpoint (e.g. tcp://host:5555).
// identity names this component on the DEALER socket.
func NewStreamChannel(endpoint, identity string, logger *zap.Logger) *StreamChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamChannel{
		endpoint: endpoint,
		identity: identity,
		logger:   logger,
		state:    StreamDisconnected,
		inbox:    make(chan *message.Envelope, 1024),
	}
}

// Connect establishes the DEALER socket and starts the receive loop.
// Connecting an already connected channel is a no-op.
func (c *StreamChannel) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StreamConnected, StreamConnecting:
		return nil
	case StreamClosing:
		return ErrChannelClosed
	}
	c.state = StreamConnecting

	sock, err := zmq.NewSocket(zmq.DEALER)
	if err != nil {
		c.state = StreamDisconnected
		return fmt.Errorf("socket creation failed: %w", err)
	}
	if err := sock.SetIdentity(c.identity); err != nil {
		sock.Close()
		c.state = StreamDisconnected
		return fmt.Errorf("identity setup failed: %w", err)
	}
	if err := sock.SetRcvtimeo(recvTimeout); err != nil {
		sock.Close()
		c.state = StreamDisconnected
		return fmt.Errorf("receive timeout setup failed: %w", err)
	}
	if err := sock.Connect(c.endpoint); err != nil {
		sock.Close()
		c.state = StreamDisconnected
		return fmt.Errorf("connect to %s failed: %w", c.endpoint, err)
	}

	c.sock = sock
	c.state = StreamConnected
	c.done = make(chan struct{})
	c.wg.Add(1)
	go c.recvLoop()

	c.logger.Info("stream channel connected",
		zap.String("endpoint", c.endpoint),
		zap.String("identity", c.identity))
	return nil
}

// State returns the current lifecycle state.
func (c *StreamChannel) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send delivers one frame. Sends on a channel that is not connected fail
// fast rather than queueing.
func (c *StreamChannel) Send(env *message.Envelope) bool {
	c.mu.Lock()
	connected := c.state == StreamConnected
	c.mu.Unlock()
	if !connected {
		return false
	}

	data, err := message.Marshal(env)
	if err != nil {
		c.logger.Warn("stream frame encode failed", zap.Error(err))
		return false
	}

	c.sockMu.Lock()
	defer c.sockMu.Unlock()
	if c.sock == nil {
		return false
	}
	if _, err := c.sock.SendBytes(data, zmq.DONTWAIT); err != nil {
		c.logger.Warn("stream send failed",
			zap.String("message_id", env.Header.MessageID),
			zap.Error(err))
		return false
	}
	return true
}

// Receive returns the next inbound frame, or nil after the poll interval.
func (c *StreamChannel) Receive() *message.Envelope {
	select {
	case env := <-c.inbox:
		return env
	case <-time.After(receivePoll):
		return nil
	}
}

// Healthy reports whether the socket is connected.
func (c *StreamChannel) Healthy() bool {
	return c.State() == StreamConnected
}

// Close stops the receive loop and tears down the socket.
func (c *StreamChannel) Close() error {
	c.mu.Lock()
	if c.state != StreamConnected {
		c.state = StreamDisconnected
		c.mu.Unlock()
		return nil
	}
	c.state = StreamClosing
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()

	c.sockMu.Lock()
	err := c.sock.Close()
	c.sock = nil
	c.sockMu.Unlock()

	c.mu.Lock()
	c.state = StreamDisconnected
	c.mu.Unlock()
	return err
}

// recvLoop drains the socket into the inbox until Close. Each iteration
// holds sockMu only for one bounded receive so Send can interleave.
func (c *StreamChannel) recvLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.sockMu.Lock()
		if c.sock == nil {
			c.sockMu.Unlock()
			return
		}
		data, err := c.sock.RecvBytes(0)
		c.sockMu.Unlock()

		if err != nil {
			// EAGAIN on receive timeout is the idle case.
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
				continue
			}
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("stream receive failed", zap.Error(err))
			continue
		}
		if len(data) == 0 {
			continue
		}

		env, err := message.Unmarshal(data)
		if err != nil {
			c.logger.Warn("malformed stream frame dropped", zap.Error(err))
			continue
		}

		select {
		case c.inbox <- env:
		default:
			c.logger.Warn("stream inbox full, dropping frame",
				zap.String("message_id", env.Header.MessageID))
		}
	}
}
