// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package comm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modmesh/internal/message"
)

func TestRemoteModule_process_round_trip(t *testing.T) {
	ch := &fakeChannel{}
	m := newTestManager(t, ch)

	reply := message.NewEnvelope(message.TypeResponse, "worker", "router").
		WithPayload(map[string]any{
			"query_id":         "q7",
			"content":          "done",
			"confidence_score": 0.8,
		})
	ch.reply = reply

	rm := NewRemoteModule("router", "worker", message.ModuleCodeAnalysis, m)
	req := message.NewProcessingRequest("u1", "analyze this")
	req.QueryID = "q7"

	resp, err := rm.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "q7", resp.QueryID)
	assert.Equal(t, "done", resp.Content)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
}

func TestRemoteModule_inherits_request_timeout(t *testing.T) {
	ch := &fakeChannel{}
	m := newTestManager(t, ch)

	rm := NewRemoteModule("router", "worker", message.ModuleCodeAnalysis, m)
	req := message.NewProcessingRequest("u1", "analyze this")
	req.Timeout = 5 * time.Second

	_, err := rm.Process(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, 5*time.Second, ch.sent[0].Header.Timeout)
}

// An already-expired context deadline must produce a tiny positive envelope
// timeout so the transport fails fast instead of defaulting to its long
// fallback wait.
func TestRemoteModule_expired_deadline_fails_fast(t *testing.T) {
	ch := &fakeChannel{}
	m := newTestManager(t, ch)

	rm := NewRemoteModule("router", "worker", message.ModuleCodeAnalysis, m)
	req := message.NewProcessingRequest("u1", "analyze this")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	rm.Process(ctx, req)
	require.Len(t, ch.sent, 1)
	timeout := ch.sent[0].Header.Timeout
	assert.Greater(t, timeout, time.Duration(0))
	assert.LessOrEqual(t, timeout, 10*time.Millisecond)
}

func TestManager_has_route(t *testing.T) {
	m := newTestManager(t, &fakeChannel{})
	assert.True(t, m.HasRoute("worker"))
	assert.False(t, m.HasRoute("nowhere"))
}
