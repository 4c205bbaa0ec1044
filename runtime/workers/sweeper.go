package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nestchat/presence"
	"nestchat/ratelimit"
)

// Sweeper periodically reclaims stale rate-limit buckets and presence
// entries to bound memory, and flips stale presence entries offline.
// A failed scan is logged and retried on the next tick; it never
// reaches foreground callers. Scans are batched inside the stores so
// no lock is held for the full duration.
type Sweeper struct {
	log       *slog.Logger
	interval  time.Duration
	retention time.Duration
	batchSize int
	limiter   *ratelimit.Limiter
	tracker   *presence.Tracker
}

func NewSweeper(log *slog.Logger, interval, retention time.Duration,
	batchSize int, limiter *ratelimit.Limiter, tracker *presence.Tracker) *Sweeper {
	return &Sweeper{
		log:       log,
		interval:  interval,
		retention: retention,
		batchSize: batchSize,
		limiter:   limiter,
		tracker:   tracker,
	}
}

func (w *Sweeper) Run(ctx context.Context) error {
	w.log.Info("Starting sweeper", "interval", w.interval, "retention", w.retention)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(); err != nil {
				w.log.Error("Sweep failed, will retry next tick", "err", err)
			}
		}
	}
}

func (w *Sweeper) sweep() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()

	expired := w.tracker.ExpireStale()
	buckets := w.limiter.Sweep(w.retention, w.batchSize)
	entries := w.tracker.Sweep(w.retention, w.batchSize)

	w.log.Debug("Sweep pass done",
		"presence_expired", expired,
		"buckets_evicted", buckets,
		"presence_evicted", entries)
	return nil
}
