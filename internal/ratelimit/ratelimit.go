// Package ratelimit throttles outbound direct messages. A single shared
// Limiter instance enforces one send per sliding window plus a rolling daily
// cap, and carries the flood-cooldown suspension used as a circuit breaker
// after abuse-guard signals. The limiter never errors on policy grounds; it
// only delays, and aborts a wait only when the context is cancelled.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter implements the send-throttling policy. Safe for use from many
// concurrent pipeline goroutines; all state is guarded by one mutex.
type Limiter struct {
	mu sync.Mutex

	interval   time.Duration
	dailyLimit int

	sent         []time.Time
	dailyCount   int
	dailyDay     int // UTC year-day of the current counter
	suspendUntil time.Time

	logger *slog.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter whose window interval is randomized between
// minInterval and maxInterval once per process start. The randomization is
// deliberate jitter against abuse detection, not a precision requirement.
func New(minInterval, maxInterval time.Duration, dailyLimit int, logger *slog.Logger) *Limiter {
	interval := minInterval
	if maxInterval > minInterval {
		interval += rand.N(maxInterval - minInterval + 1)
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		interval:   interval,
		dailyLimit: dailyLimit,
		logger:     logger.With("component", "ratelimit"),
		now:        time.Now,
		sleep:      sleepCtx,
	}
	now := l.now().UTC()
	l.dailyDay = now.YearDay()

	l.logger.Info("DM rate limiter initialized",
		"window_interval", interval, "daily_limit", dailyLimit)
	return l
}

// AcquireSlot blocks until it is safe to send one outbound direct message.
// It honors, in order: an active flood suspension, the daily cap (waiting for
// UTC midnight), and the sliding window. Returns the context error if the
// wait is abandoned by cancellation; it never fails otherwise.
func (l *Limiter) AcquireSlot(ctx context.Context) error {
	for {
		wait := l.nextWait()
		if wait <= 0 {
			return nil
		}
		l.logger.Debug("Send slot not available, waiting", "wait", wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// nextWait computes how long the caller must wait before the next send is
// permitted, pruning stale window entries and rolling the daily counter as a
// side effect. Returns 0 when a send may proceed now.
func (l *Limiter) nextWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()

	if now.YearDay() != l.dailyDay {
		l.dailyCount = 0
		l.dailyDay = now.YearDay()
		l.logger.Info("Daily DM count reset")
	}

	if until := l.suspendUntil; now.Before(until) {
		return until.Sub(now)
	}

	if l.dailyCount >= l.dailyLimit {
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		l.logger.Warn("Daily DM limit reached, waiting for UTC midnight",
			"limit", l.dailyLimit, "wait", midnight.Sub(now))
		return midnight.Sub(now)
	}

	// Prune timestamps that have left the window.
	cutoff := now.Add(-l.interval)
	kept := l.sent[:0]
	for _, t := range l.sent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.sent = kept

	// Window capacity is one send per interval.
	if len(l.sent) > 0 {
		return l.sent[0].Add(l.interval).Sub(now)
	}
	return 0
}

// RecordSent registers that a send just occurred, appending the timestamp to
// the window and incrementing the daily counter.
func (l *Limiter) RecordSent() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sent = append(l.sent, l.now().UTC())
	l.dailyCount++
	l.logger.Debug("DM send recorded",
		"sent_today", l.dailyCount, "window_size", len(l.sent))
}

// Suspend pauses all sends for the given duration. Used as the circuit
// breaker after flood-type send failures; it suspends the whole sending path,
// not a single message.
func (l *Limiter) Suspend(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().UTC().Add(d)
	if until.After(l.suspendUntil) {
		l.suspendUntil = until
	}
	l.logger.Warn("Outbound sends suspended", "duration", d, "until", l.suspendUntil)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
