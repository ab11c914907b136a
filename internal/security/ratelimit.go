// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"sync"
	"time"
)

// ============================================================================
// SLIDING-WINDOW RATE LIMITER
// ============================================================================

// RateLimiter implements a sliding-window rate limiter per source component.
// Each source keeps the ordered timestamps of its recent authorized requests;
// every check prunes entries older than the window. Check, prune, and append
// happen atomically per source under one lock.
type RateLimiter struct {
	// requests maps source component ids to their request timestamps.
	requests map[string][]time.Time

	// limit is the maximum number of requests per window.
	limit int

	// window is the trailing time window.
	window time.Duration

	// mu protects concurrent access to the requests map.
	mu sync.Mutex
}

// NewRateLimiter creates a RateLimiter with the given limit and window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// DefaultRateLimiter returns the default policy: 1000 requests per 60s.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(1000, time.Minute)
}

// Allow checks whether a request from source should be admitted, recording
// it when allowed.
func (rl *RateLimiter) Allow(source string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	timestamps := rl.requests[source]
	valid := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[source] = valid
		return false
	}

	valid = append(valid, now)
	rl.requests[source] = valid
	return true
}

// Remaining returns how many requests the source has left in the current
// window.
func (rl *RateLimiter) Remaining(source string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)
	count := 0
	for _, ts := range rl.requests[source] {
		if ts.After(windowStart) {
			count++
		}
	}

	remaining := rl.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Prune drops sources whose windows have fully expired. Call periodically
// from a supervising goroutine; Allow prunes per source on every check, so
// this only reclaims memory for idle sources.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)
	for source, timestamps := range rl.requests {
		valid := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(windowStart) {
				valid = append(valid, ts)
			}
		}
		if len(valid) == 0 {
			delete(rl.requests, source)
		} else {
			rl.requests[source] = valid
		}
	}
}
