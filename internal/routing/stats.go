// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"sync"
	"time"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// ROLLING STATS
// ============================================================================

// recentWindow is how many recent confidence samples feed the scorer's
// historical modifier.
const recentWindow = 10

// RollingStats holds per-module-type running averages. Every mutation goes
// through Update under the stats' own lock, so the rolling-average invariant
// holds under concurrency: after N updates AvgConfidence equals the
// arithmetic mean of the N recorded scores.
type RollingStats struct {
	mu sync.Mutex

	count         int64
	confidenceSum float64
	processingSum time.Duration
	recentConf    []float64
}

// Update records one response outcome as a single atomic step.
func (s *RollingStats) Update(confidence float64, processingTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.confidenceSum += confidence
	s.processingSum += processingTime

	s.recentConf = append(s.recentConf, confidence)
	if len(s.recentConf) > recentWindow {
		s.recentConf = s.recentConf[1:]
	}
}

// StatsSnapshot is a point-in-time copy of one module type's stats.
type StatsSnapshot struct {
	ModuleType        message.ModuleType `json:"module_type"`
	RequestCount      int64              `json:"request_count"`
	AvgConfidence     float64            `json:"avg_confidence"`
	AvgProcessingTime time.Duration      `json:"avg_processing_time"`
}

// Snapshot returns the current averages.
func (s *RollingStats) Snapshot(mt message.ModuleType) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{ModuleType: mt, RequestCount: s.count}
	if s.count > 0 {
		snap.AvgConfidence = s.confidenceSum / float64(s.count)
		snap.AvgProcessingTime = s.processingSum / time.Duration(s.count)
	}
	return snap
}

// Recent returns a copy of the most recent (at most 10) confidence samples.
func (s *RollingStats) Recent() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.recentConf...)
}

// ============================================================================
// STATS TABLE
// ============================================================================

// statsTable maps module types to their rolling stats. One lock guards map
// growth only; each RollingStats carries its own lock for updates.
type statsTable struct {
	mu    sync.RWMutex
	byMod map[message.ModuleType]*RollingStats
}

func newStatsTable() *statsTable {
	return &statsTable{byMod: make(map[message.ModuleType]*RollingStats)}
}

// forType returns the stats bucket for a module type, creating it if needed.
func (t *statsTable) forType(mt message.ModuleType) *RollingStats {
	t.mu.RLock()
	s, ok := t.byMod[mt]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.byMod[mt]; ok {
		return s
	}
	s = &RollingStats{}
	t.byMod[mt] = s
	return s
}

// snapshots returns a snapshot for every module type seen so far.
func (t *statsTable) snapshots() []StatsSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snaps := make([]StatsSnapshot, 0, len(t.byMod))
	for mt, s := range t.byMod {
		snaps = append(snaps, s.Snapshot(mt))
	}
	return snaps
}
