// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pricing

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDailyLimit caps predictions per UTC day when RATE_LIMIT_PER_DAY
// is not set. Each prediction costs at least one LLM call, so the cap
// tracks the provider's free-tier quota.
const DefaultDailyLimit = 30

// DailyLimiter enforces a process-wide daily request quota.
//
// Description:
//
//	Counts accepted requests against a fixed per-UTC-day budget and resets
//	the count when the day changes. The quota is global, not per-client:
//	it protects the LLM quota, not fairness between callers.
//
// Thread Safety: Safe for concurrent use.
type DailyLimiter struct {
	mu    sync.Mutex
	max   int
	count int
	day   string

	// now is injectable for tests.
	now func() time.Time
}

// NewDailyLimiter creates a limiter allowing max requests per UTC day.
// A non-positive max falls back to DefaultDailyLimit.
func NewDailyLimiter(max int) *DailyLimiter {
	if max <= 0 {
		max = DefaultDailyLimit
	}
	return &DailyLimiter{max: max, now: time.Now}
}

// Allow consumes one unit of today's quota.
//
// Outputs:
//   - bool: True if the request is within quota; false means the caller
//     must be rejected with 429.
func (l *DailyLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollIfNewDay()
	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}

// Remaining reports how many requests are left today.
func (l *DailyLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollIfNewDay()
	return l.max - l.count
}

// rollIfNewDay resets the counter on a UTC day change. Callers must hold mu.
func (l *DailyLimiter) rollIfNewDay() {
	today := l.now().UTC().Format("2006-01-02")
	if today != l.day {
		if l.day != "" {
			slog.Info("Daily request quota reset",
				slog.String("day", today),
				slog.Int("limit", l.max),
			)
		}
		l.day = today
		l.count = 0
	}
}
