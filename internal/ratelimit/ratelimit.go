// Package ratelimit implements the fixed-window rate limiter of spec.md
// §5: two maps (by IP, by voter-scoped key) of count/resetAt, each key
// mutually exclusive under its own window. golang.org/x/time/rate's
// token-bucket algorithm does not reproduce this fixed-window,
// count-and-reset-timestamp contract, so this is a small hand-rolled
// mutex-guarded map instead (see DESIGN.md).
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by arbitrary strings, with a
// single window duration shared by all keys.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	counts map[string]*window
}

// New creates a Limiter allowing up to limit hits per key within period.
func New(limit int, period time.Duration) *Limiter {
	return &Limiter{
		window: period,
		limit:  limit,
		counts: make(map[string]*window),
	}
}

// Allow reports whether key may proceed, incrementing its counter if so.
// The window resets the first time a key is seen after its previous
// resetAt has passed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.counts[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 0, resetAt: now.Add(l.window)}
		l.counts[key] = w
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Prune removes every key whose window has already expired, per spec.md
// §4.9's 5-minute rate-limit cleanup tick.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, w := range l.counts {
		if now.After(w.resetAt) {
			delete(l.counts, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counts)
}
