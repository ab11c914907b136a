// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modmesh/internal/message"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorder_decisions_round_trip(t *testing.T) {
	r := openTestRecorder(t)

	r.RecordDecision("q-1", message.CategoryCodeGeneration, message.ModuleCodeAnalysis, 0.91, 1200*time.Millisecond, false)
	r.RecordDecision("q-2", message.CategoryGeneral, message.ModuleGeneral, 0.4, 300*time.Millisecond, true)

	decisions, err := r.Decisions(10)
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	// Newest first.
	assert.Equal(t, "q-2", decisions[0].QueryID)
	assert.True(t, decisions[0].FallbackUsed)
	assert.Equal(t, "q-1", decisions[1].QueryID)
	assert.Equal(t, "CODE_GENERATION", decisions[1].Category)
	assert.Equal(t, "code_analysis", decisions[1].ModuleType)
	assert.InDelta(t, 0.91, decisions[1].Confidence, 1e-9)
	assert.Equal(t, int64(1200), decisions[1].ProcessingMS)
}

func TestRecorder_decisions_limit(t *testing.T) {
	r := openTestRecorder(t)
	for i := 0; i < 5; i++ {
		r.RecordDecision("q", message.CategoryGeneral, message.ModuleGeneral, 0.5, time.Second, false)
	}
	decisions, err := r.Decisions(3)
	require.NoError(t, err)
	assert.Len(t, decisions, 3)
}

func TestRecorder_fallback_success_rate(t *testing.T) {
	r := openTestRecorder(t)

	r.RecordFallbackAttempt("q-1", message.ModuleCodeAnalysis, message.ModuleGeneral, true)
	r.RecordFallbackAttempt("q-2", message.ModuleCodeAnalysis, message.ModuleGeneral, false)
	r.RecordFallbackAttempt("q-3", message.ModuleCodeAnalysis, message.ModuleGeneral, true)

	attempts, accepted, err := r.FallbackSuccessRate(message.ModuleCodeAnalysis)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, accepted)

	attempts, accepted, err = r.FallbackSuccessRate(message.ModuleDataAnalysis)
	require.NoError(t, err)
	assert.Zero(t, attempts)
	assert.Zero(t, accepted)
}

func TestOpen_creates_parent_directory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "telemetry.db")
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	r.RecordDecision("q", message.CategoryGeneral, message.ModuleGeneral, 0.5, time.Second, false)
	decisions, err := r.Decisions(1)
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}
