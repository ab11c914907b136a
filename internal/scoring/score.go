// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scoring computes normalized confidence scores for processing
// responses.
//
// The final score is a weighted sum of five signals, clamped to [0,1]:
//
//	self-reported confidence      x 0.30
//	quality-metric weighted mean  x 0.25
//	historical modifier           x 0.20
//	processing-time desirability  x 0.15
//	content completeness          x 0.10
package scoring

import (
	"time"

	"github.com/jeranaias/modmesh/internal/message"
	"github.com/jeranaias/modmesh/internal/util"
)

// ============================================================================
// WEIGHTS
// ============================================================================

const (
	weightSelfReported = 0.30
	weightQuality      = 0.25
	weightHistory      = 0.20
	weightTiming       = 0.15
	weightCompleteness = 0.10

	// neutralQuality is used when a response supplies no quality metrics.
	neutralQuality = 0.5

	// minHistorySamples is the minimum sample count before history biases
	// the score; below it the modifier stays neutral (1.0).
	minHistorySamples = 5
)

// metricWeights are the fixed per-metric weights for the quality signal.
// Unknown metric names are ignored.
var metricWeights = map[string]float64{
	"relevance":    0.25,
	"coherence":    0.20,
	"accuracy":     0.20,
	"completeness": 0.15,
	"safety":       0.10,
	"performance":  0.10,
}

// ============================================================================
// SCORER
// ============================================================================

// Scorer computes confidence scores. Stateless and safe for concurrent use.
type Scorer struct{}

// New returns a Scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score computes the normalized confidence for a response. history holds the
// most recent (at most 10) recorded confidence scores for the module type
// that produced the response; pass nil when no history exists.
func (s *Scorer) Score(resp *message.ProcessingResponse, history []float64) float64 {
	score := util.Clamp01(resp.Confidence)*weightSelfReported +
		qualitySignal(resp.QualityMetrics)*weightQuality +
		historyModifier(history)*weightHistory +
		timingSignal(resp.ProcessingTime)*weightTiming +
		completenessSignal(resp.Content)*weightCompleteness

	return util.Clamp01(score)
}

// qualitySignal computes the weighted average of the supplied metrics using
// the fixed metric weights. Responses with no metrics get a neutral 0.5.
func qualitySignal(metrics map[string]float64) float64 {
	if len(metrics) == 0 {
		return neutralQuality
	}
	sum, weightSum := 0.0, 0.0
	for name, value := range metrics {
		w, ok := metricWeights[name]
		if !ok {
			continue
		}
		sum += util.Clamp01(value) * w
		weightSum += w
	}
	if weightSum == 0 {
		return neutralQuality
	}
	return sum / weightSum
}

// historyModifier maps the mean of recent confidence scores linearly onto
// [0.8, 1.2]. With fewer than minHistorySamples samples it stays neutral.
func historyModifier(history []float64) float64 {
	if len(history) < minHistorySamples {
		return 1.0
	}
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	return 0.8 + 0.4*util.Mean(history)
}

// timingSignal buckets processing time into a desirability factor.
// Suspiciously fast responses score below steady ones; slow responses
// degrade progressively.
func timingSignal(d time.Duration) float64 {
	switch {
	case d < 100*time.Millisecond:
		return 0.7
	case d < 2*time.Second:
		return 1.0
	case d < 10*time.Second:
		return 0.9
	default:
		return 0.6
	}
}

// completenessSignal estimates completeness from response length: very short
// responses score low, medium responses high, and very long responses
// slightly lower.
func completenessSignal(content string) float64 {
	n := len(content)
	switch {
	case n == 0:
		return 0.0
	case n < 20:
		return 0.3
	case n < 100:
		return 0.6
	case n < 2000:
		return 1.0
	case n < 10000:
		return 0.9
	default:
		return 0.7
	}
}
