// Package presence tracks best-effort online/last-seen state per user.
// Entries are process-local; staleness and memory reclamation are driven
// by the sweeper.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"nestchat/domain"
)

type Tracker struct {
	mu      sync.RWMutex
	entries map[string]domain.Presence
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

func NewTracker(log *slog.Logger, timeout time.Duration) *Tracker {
	return &Tracker{
		entries: make(map[string]domain.Presence),
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Heartbeat marks the user online and refreshes their last-seen time.
func (t *Tracker) Heartbeat(userID string) domain.Presence {
	p := domain.Presence{UserID: userID, Online: true, LastSeenAt: t.now()}
	t.mu.Lock()
	t.entries[userID] = p
	t.mu.Unlock()
	return p
}

// Get returns the presence view for a user. A user whose heartbeat is
// older than the presence timeout is reported offline even before the
// sweeper flipped the stored flag; an unknown user is simply offline.
func (t *Tracker) Get(userID string) domain.Presence {
	t.mu.RLock()
	p, ok := t.entries[userID]
	t.mu.RUnlock()
	if !ok {
		return domain.Presence{UserID: userID}
	}
	if p.Online && t.now().Sub(p.LastSeenAt) > t.timeout {
		p.Online = false
	}
	return p
}

// ExpireStale flips stale entries offline and returns how many changed.
func (t *Tracker) ExpireStale() int {
	cutoff := t.now().Add(-t.timeout)
	expired := 0

	t.mu.Lock()
	for userID, p := range t.entries {
		if p.Online && p.LastSeenAt.Before(cutoff) {
			p.Online = false
			t.entries[userID] = p
			expired++
		}
	}
	t.mu.Unlock()

	if expired > 0 {
		t.log.Debug("Expired stale presence entries", "count", expired)
	}
	return expired
}

// Size returns the number of tracked users.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Sweep removes entries last seen before the retention horizon so the
// map stays bounded. The scan is batched like the rate-limit sweep.
func (t *Tracker) Sweep(retention time.Duration, batchSize int) int {
	cutoff := t.now().Add(-retention)

	t.mu.Lock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	evicted := 0
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		t.mu.Lock()
		for _, id := range ids[start:end] {
			if p, ok := t.entries[id]; ok && p.LastSeenAt.Before(cutoff) {
				delete(t.entries, id)
				evicted++
			}
		}
		t.mu.Unlock()
	}

	if evicted > 0 {
		t.log.Debug("Evicted idle presence entries", "count", evicted)
	}
	return evicted
}
