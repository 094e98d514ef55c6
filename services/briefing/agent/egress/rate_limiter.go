// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egress

import (
	"sync"
	"time"
)

// slidingWindow is one minute expressed in the Unix-millisecond
// arithmetic the limiter runs on.
const slidingWindow = int64(60_000)

// RateLimiter enforces per-provider request-per-minute budgets with a
// sliding window of timestamps.
//
// # Description
//
// A repair loop that re-runs research and synthesis can multiply the
// call volume of a single user query several times over; the limiter
// keeps that amplification inside each cloud provider's budget. Local
// providers pass unconditionally.
//
// Thread Safety: safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	windows map[string][]int64
}

// NewRateLimiter creates a limiter from per-provider requests-per-
// minute budgets. Providers absent from the map are unlimited.
func NewRateLimiter(limitsPerMin map[string]int) *RateLimiter {
	limits := make(map[string]int, len(limitsPerMin))
	for k, v := range limitsPerMin {
		limits[k] = v
	}
	return &RateLimiter{
		limits:  limits,
		windows: make(map[string][]int64),
	}
}

// Allow reports whether a request to provider fits the current window,
// recording it when it does. On rejection the returned duration says
// how long until the oldest in-window request ages out.
func (r *RateLimiter) Allow(provider string) (bool, time.Duration) {
	// Localhost is not metered.
	if provider == "ollama" || provider == "" {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	limit, exists := r.limits[provider]
	if !exists || limit <= 0 {
		return true, 0
	}

	now := time.Now().UnixMilli()
	windowStart := now - slidingWindow

	timestamps := r.windows[provider]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts > windowStart {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= limit {
		retryAfter := time.Duration(pruned[0]+slidingWindow-now) * time.Millisecond
		r.windows[provider] = pruned
		return false, retryAfter
	}

	r.windows[provider] = append(pruned, now)
	return true, 0
}
