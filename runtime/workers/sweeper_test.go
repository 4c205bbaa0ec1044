package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nestchat/presence"
	"nestchat/ratelimit"
)

func TestSweeper_EvictsIdleState(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := ratelimit.NewLimiter(log, 10, time.Minute).WithClock(clock)
	tracker := presence.NewTracker(log, time.Minute).WithClock(clock)

	limiter.Check("idle-client")
	tracker.Heartbeat("idle-user")
	now = now.Add(90 * time.Minute)
	limiter.Check("active-client")
	tracker.Heartbeat("active-user")

	sweeper := NewSweeper(log, 10*time.Millisecond, time.Hour, 100, limiter, tracker)
	req.NoError(sweeper.sweep())

	req.Equal(1, limiter.Size())
	req.Equal(1, tracker.Size())
	req.True(tracker.Get("active-user").Online)
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	log := slog.Default()
	limiter := ratelimit.NewLimiter(log, 10, time.Minute)
	tracker := presence.NewTracker(log, time.Minute)
	sweeper := NewSweeper(log, time.Millisecond, time.Hour, 100, limiter, tracker)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sweeper.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
