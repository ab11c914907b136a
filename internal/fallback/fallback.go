// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fallback decides whether and where to retry a failed or
// low-confidence processing result.
//
// Each module type declares an ordered chain of alternates. A candidate
// replaces the original result only when it carries no error AND a strictly
// higher confidence. Fallback is attempted for timeouts, module errors, and
// low-confidence outcomes only; validation and authorization failures are
// structural and never retried here.
package fallback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// DEFAULTS AND METADATA KEYS
// ============================================================================

const (
	// DefaultThreshold is the confidence below which fallback triggers.
	DefaultThreshold = 0.6

	// DefaultHardCap is the processing time above which fallback triggers
	// even for otherwise acceptable results.
	DefaultHardCap = 30 * time.Second
)

// Metadata keys written onto responses by Resolve.
const (
	// MetaFallbackUsed marks a response produced by a fallback module.
	MetaFallbackUsed = "fallback_used"

	// MetaOriginalModule names the module whose result was replaced.
	MetaOriginalModule = "original_module"

	// MetaReason is "low_confidence" or "error".
	MetaReason = "fallback_reason"

	// MetaAttempted lists the candidate module types tried without success.
	MetaAttempted = "attempted_fallbacks"
)

// Fallback reasons recorded under MetaReason.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonError         = "error"
)

// InvokeFunc invokes a candidate module for a request under the same
// bounded-timeout contract the router applies to primaries. It never returns
// nil and never panics.
type InvokeFunc func(ctx context.Context, mt message.ModuleType, req *message.ProcessingRequest) *message.ProcessingResponse

// AttemptRecorder receives every fallback attempt for durable recording.
// Implementations must not block; failures are the recorder's problem,
// never the coordinator's.
type AttemptRecorder interface {
	RecordFallbackAttempt(queryID string, origin, candidate message.ModuleType, accepted bool)
}

// ============================================================================
// COORDINATOR
// ============================================================================

// pairKey identifies an (origin, candidate) edge in the diagnostics history.
type pairKey struct {
	origin    message.ModuleType
	candidate message.ModuleType
}

// pairStats counts attempts and successes for one edge. Diagnostics only:
// never consulted for routing decisions.
type pairStats struct {
	Attempts  int
	Successes int
}

// Coordinator walks fallback chains and tracks attempt diagnostics.
type Coordinator struct {
	mu        sync.Mutex
	chains    map[message.ModuleType][]message.ModuleType
	history   map[pairKey]*pairStats
	recorder  AttemptRecorder
	threshold float64
	hardCap   time.Duration
	logger    *zap.Logger
}

// New returns a coordinator with the default threshold (0.6) and hard cap
// (30s). Pass nil for logger to disable logging.
func New(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		chains:    make(map[message.ModuleType][]message.ModuleType),
		history:   make(map[pairKey]*pairStats),
		threshold: DefaultThreshold,
		hardCap:   DefaultHardCap,
		logger:    logger,
	}
}

// SetThreshold overrides the confidence threshold.
func (c *Coordinator) SetThreshold(threshold float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = threshold
}

// SetHardCap overrides the processing-time hard cap.
func (c *Coordinator) SetHardCap(cap time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hardCap = cap
}

// SetRecorder attaches a durable recorder for attempt outcomes. The
// in-memory diagnostics counters are kept regardless.
func (c *Coordinator) SetRecorder(r AttemptRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// SetChain declares the ordered fallback chain for a module type.
func (c *Coordinator) SetChain(origin message.ModuleType, chain []message.ModuleType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chains[origin] = append([]message.ModuleType(nil), chain...)
}

// Chain returns a copy of the declared chain for a module type.
func (c *Coordinator) Chain(origin message.ModuleType) []message.ModuleType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message.ModuleType(nil), c.chains[origin]...)
}

// ShouldFallback reports whether a response warrants a fallback attempt:
// the response errored, its confidence sits below the threshold, or its
// processing time blew the hard cap.
func (c *Coordinator) ShouldFallback(resp *message.ProcessingResponse) bool {
	c.mu.Lock()
	threshold, hardCap := c.threshold, c.hardCap
	c.mu.Unlock()

	if resp.Failed() {
		return true
	}
	if resp.Confidence < threshold {
		return true
	}
	return resp.ProcessingTime > hardCap
}

// Resolve walks origin's declared chain in order, invoking each candidate,
// and accepts the first whose response has no error and strictly higher
// confidence than the failing response. The accepted response is annotated
// with the fallback metadata keys. If no candidate improves on the original,
// the failing response is returned unchanged except for an attempted-
// candidates annotation.
func (c *Coordinator) Resolve(ctx context.Context, origin message.ModuleType, req *message.ProcessingRequest, failing *message.ProcessingResponse, invoke InvokeFunc) *message.ProcessingResponse {
	chain := c.Chain(origin)
	if len(chain) == 0 {
		return failing
	}

	reason := ReasonLowConfidence
	if failing.Failed() {
		reason = ReasonError
	}

	attempted := make([]string, 0, len(chain))
	for _, candidate := range chain {
		if candidate == origin {
			continue
		}
		attempted = append(attempted, candidate.String())

		resp := invoke(ctx, candidate, req)
		improved := resp != nil && !resp.Failed() && resp.Confidence > failing.Confidence
		c.recordAttempt(req.QueryID, origin, candidate, improved)

		if !improved {
			c.logger.Debug("fallback candidate did not improve result",
				zap.String("origin", origin.String()),
				zap.String("candidate", candidate.String()),
				zap.String("query_id", req.QueryID))
			continue
		}

		if resp.Metadata == nil {
			resp.Metadata = make(map[string]any)
		}
		resp.Metadata[MetaFallbackUsed] = true
		resp.Metadata[MetaOriginalModule] = origin.String()
		resp.Metadata[MetaReason] = reason

		c.logger.Info("fallback succeeded",
			zap.String("origin", origin.String()),
			zap.String("candidate", candidate.String()),
			zap.String("reason", reason),
			zap.Float64("confidence", resp.Confidence))
		return resp
	}

	// Nothing improved: hand back the original, annotated for observability.
	if failing.Metadata == nil {
		failing.Metadata = make(map[string]any)
	}
	failing.Metadata[MetaAttempted] = attempted
	return failing
}

// recordAttempt updates the (origin, candidate) diagnostics counters and
// forwards the outcome to the durable recorder when one is attached.
func (c *Coordinator) recordAttempt(queryID string, origin, candidate message.ModuleType, success bool) {
	c.mu.Lock()
	key := pairKey{origin: origin, candidate: candidate}
	stats, ok := c.history[key]
	if !ok {
		stats = &pairStats{}
		c.history[key] = stats
	}
	stats.Attempts++
	if success {
		stats.Successes++
	}
	recorder := c.recorder
	c.mu.Unlock()

	if recorder != nil {
		recorder.RecordFallbackAttempt(queryID, origin, candidate, success)
	}
}

// AttemptStats returns (attempts, successes) for an (origin, candidate)
// edge. Diagnostics only.
func (c *Coordinator) AttemptStats(origin, candidate message.ModuleType) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.history[pairKey{origin: origin, candidate: candidate}]
	if !ok {
		return 0, 0
	}
	return stats.Attempts, stats.Successes
}
