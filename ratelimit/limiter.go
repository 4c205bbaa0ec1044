// Package ratelimit implements the sliding-window throttle protecting
// the messaging endpoints. Buckets are process-local and ephemeral;
// reclamation of idle buckets is delegated to the sweeper.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Result is the outcome of a single check. Limit, Remaining and ResetAt
// are mandatory on every throttled response.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

type Limiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	max     int
	window  time.Duration
	log     *slog.Logger
	now     func() time.Time
}

func NewLimiter(log *slog.Logger, maxPerWindow int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string][]time.Time),
		max:     maxPerWindow,
		window:  window,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check records the current attempt in the token's bucket, drops entries
// older than the window and decides whether the attempt is allowed.
// The attempt itself always counts: a saturated token keeps refreshing
// its bucket and is refused until its oldest entry ages out.
func (l *Limiter) Check(token string) Result {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[token]
	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	l.buckets[token] = kept

	remaining := l.max - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   len(kept) <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   kept[0].Add(l.window),
	}
}

// Size returns the number of live buckets.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep evicts buckets whose newest entry is older than the retention
// horizon. A bucket with a single request inside the horizon survives,
// even when that request already left the active rate-limit window.
// The scan is batched so the mutex is never held for the whole map.
func (l *Limiter) Sweep(retention time.Duration, batchSize int) int {
	cutoff := l.now().Add(-retention)

	l.mu.Lock()
	tokens := make([]string, 0, len(l.buckets))
	for token := range l.buckets {
		tokens = append(tokens, token)
	}
	l.mu.Unlock()

	evicted := 0
	for start := 0; start < len(tokens); start += batchSize {
		end := start + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}

		l.mu.Lock()
		for _, token := range tokens[start:end] {
			bucket, ok := l.buckets[token]
			if !ok {
				continue
			}
			if newest(bucket).Before(cutoff) {
				delete(l.buckets, token)
				evicted++
			}
		}
		l.mu.Unlock()
	}

	if evicted > 0 {
		l.log.Debug("Evicted idle rate-limit buckets", "count", evicted)
	}
	return evicted
}

func newest(bucket []time.Time) time.Time {
	// Entries are appended in order; the last one is the newest.
	if len(bucket) == 0 {
		return time.Time{}
	}
	return bucket[len(bucket)-1]
}
