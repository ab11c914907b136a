// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package scoring

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/modmesh/internal/message"
)

func sampleResponse() *message.ProcessingResponse {
	return &message.ProcessingResponse{
		QueryID:        "q1",
		ModuleType:     message.ModuleGeneral,
		Content:        strings.Repeat("a solid answer. ", 20),
		Confidence:     0.8,
		ProcessingTime: 1200 * time.Millisecond,
		Timestamp:      time.Now().UTC(),
	}
}

// TestScoreBounds verifies every score lands in [0,1] across extremes.
func TestScoreBounds(t *testing.T) {
	s := New()

	tests := []struct {
		name string
		prep func(*message.ProcessingResponse)
		hist []float64
	}{
		{name: "typical", prep: func(r *message.ProcessingResponse) {}},
		{name: "all_maxed", prep: func(r *message.ProcessingResponse) {
			r.Confidence = 1.0
			r.QualityMetrics = map[string]float64{
				"relevance": 1, "coherence": 1, "accuracy": 1,
				"completeness": 1, "safety": 1, "performance": 1,
			}
		}, hist: []float64{1, 1, 1, 1, 1, 1}},
		{name: "all_zero", prep: func(r *message.ProcessingResponse) {
			r.Confidence = 0
			r.Content = ""
			r.ProcessingTime = 15 * time.Second
		}, hist: []float64{0, 0, 0, 0, 0}},
		{name: "overreported_confidence", prep: func(r *message.ProcessingResponse) {
			r.Confidence = 3.5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := sampleResponse()
			tt.prep(resp)
			got := s.Score(resp, tt.hist)
			if got < 0 || got > 1 {
				t.Errorf("score %v out of [0,1]", got)
			}
		})
	}
}

// TestScoreNeutralMetrics verifies that a response without quality metrics
// gets the neutral 0.5 quality signal.
func TestScoreNeutralMetrics(t *testing.T) {
	s := New()

	bare := sampleResponse()
	withNeutral := sampleResponse()
	withNeutral.QualityMetrics = map[string]float64{
		"relevance": 0.5, "coherence": 0.5, "accuracy": 0.5,
		"completeness": 0.5, "safety": 0.5, "performance": 0.5,
	}

	got := s.Score(bare, nil)
	want := s.Score(withNeutral, nil)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("neutral metrics mismatch: bare=%v explicit=%v", got, want)
	}
}

// TestScoreHistoryModifier verifies the [0.8,1.2] band and the 5-sample
// neutrality threshold.
func TestScoreHistoryModifier(t *testing.T) {
	if got := historyModifier(nil); got != 1.0 {
		t.Errorf("empty history modifier = %v, want 1.0", got)
	}
	if got := historyModifier([]float64{0.9, 0.9, 0.9, 0.9}); got != 1.0 {
		t.Errorf("4-sample history must stay neutral, got %v", got)
	}
	if got := historyModifier([]float64{0, 0, 0, 0, 0}); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("all-zero history modifier = %v, want 0.8", got)
	}
	if got := historyModifier([]float64{1, 1, 1, 1, 1}); math.Abs(got-1.2) > 1e-9 {
		t.Errorf("all-one history modifier = %v, want 1.2", got)
	}

	// Only the last 10 samples count.
	hist := make([]float64, 0, 12)
	for i := 0; i < 12; i++ {
		v := 0.0
		if i >= 2 {
			v = 1.0
		}
		hist = append(hist, v)
	}
	if got := historyModifier(hist); math.Abs(got-1.2) > 1e-9 {
		t.Errorf("trailing-10 modifier = %v, want 1.2", got)
	}
}

// TestScoreTimingBuckets verifies the processing-time desirability buckets.
func TestScoreTimingBuckets(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want float64
	}{
		{name: "suspiciously_fast", d: 50 * time.Millisecond, want: 0.7},
		{name: "steady", d: 1 * time.Second, want: 1.0},
		{name: "slow", d: 5 * time.Second, want: 0.9},
		{name: "very_slow", d: 30 * time.Second, want: 0.6},
		{name: "boundary_100ms", d: 100 * time.Millisecond, want: 1.0},
		{name: "boundary_2s", d: 2 * time.Second, want: 0.9},
		{name: "boundary_10s", d: 10 * time.Second, want: 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := timingSignal(tt.d); got != tt.want {
				t.Errorf("timingSignal(%v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

// TestScoreCompleteness verifies short responses score lower than medium and
// very long responses dip slightly.
func TestScoreCompleteness(t *testing.T) {
	short := completenessSignal("ok")
	medium := completenessSignal(strings.Repeat("x", 500))
	huge := completenessSignal(strings.Repeat("x", 20000))

	if short >= medium {
		t.Errorf("short (%v) should score below medium (%v)", short, medium)
	}
	if huge >= medium {
		t.Errorf("very long (%v) should score below medium (%v)", huge, medium)
	}
	if completenessSignal("") != 0 {
		t.Error("empty content must score 0")
	}
}

// TestScoreUnknownMetricsIgnored verifies unrecognized metric names do not
// influence the quality signal.
func TestScoreUnknownMetricsIgnored(t *testing.T) {
	known := qualitySignal(map[string]float64{"relevance": 0.9})
	padded := qualitySignal(map[string]float64{"relevance": 0.9, "vibes": 0.0})
	if math.Abs(known-padded) > 1e-9 {
		t.Errorf("unknown metric changed signal: %v vs %v", known, padded)
	}
}
