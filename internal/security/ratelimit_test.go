// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_allows_up_to_limit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("src") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("src") {
		t.Fatal("4th request within window should be rejected")
	}
}

func TestRateLimiter_window_slides(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)

	if !rl.Allow("src") || !rl.Allow("src") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.Allow("src") {
		t.Fatal("third request should be rejected")
	}

	time.Sleep(150 * time.Millisecond)
	if !rl.Allow("src") {
		t.Fatal("request after window elapsed should be allowed")
	}
}

func TestRateLimiter_isolated_per_source(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("a") {
		t.Fatal("first request from a should be allowed")
	}
	if rl.Allow("a") {
		t.Fatal("second request from a should be rejected")
	}
	if !rl.Allow("b") {
		t.Fatal("b has its own window")
	}
}

func TestRateLimiter_remaining(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)

	if got := rl.Remaining("src"); got != 5 {
		t.Fatalf("Remaining = %d, want 5", got)
	}
	rl.Allow("src")
	rl.Allow("src")
	if got := rl.Remaining("src"); got != 3 {
		t.Fatalf("Remaining = %d, want 3", got)
	}
}

func TestRateLimiter_concurrent_sources(t *testing.T) {
	rl := NewRateLimiter(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.Allow("shared")
			}
		}()
	}
	wg.Wait()

	// 800 attempts against a limit of 100: window must be exhausted.
	if rl.Allow("shared") {
		t.Fatal("window should be exhausted after concurrent burst")
	}
	if got := rl.Remaining("shared"); got != 0 {
		t.Fatalf("Remaining = %d, want 0", got)
	}
}

func TestRateLimiter_prune_reclaims_idle_sources(t *testing.T) {
	rl := NewRateLimiter(10, 50*time.Millisecond)
	rl.Allow("idle")

	time.Sleep(80 * time.Millisecond)
	rl.Prune()

	if got := rl.Remaining("idle"); got != 10 {
		t.Fatalf("Remaining after prune = %d, want 10", got)
	}
}
