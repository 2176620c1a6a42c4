// Package ratelimit guards outbound search calls with a sliding request window
// and computes backoff delays after quota rejections.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultWindow        = 60 * time.Second
	defaultMaxRequests   = 50
	defaultBaseBackoff   = 60 * time.Second
	defaultMaxBackoff    = 300 * time.Second
	defaultMaxEscalation = 3
)

// Options tune the limiter. Zero values fall back to the defaults.
type Options struct {
	Window      time.Duration
	MaxRequests int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Limiter tracks request timestamps inside a sliding window and the number of
// consecutive quota rejections. All state is owned by the instance.
type Limiter struct {
	opts   Options
	logger zerolog.Logger

	// gate serialises Acquire callers in arrival order.
	gate chan struct{}

	mu          sync.Mutex
	stamps      []time.Time
	consecutive int

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
	onWait  func(time.Duration)
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.nowFn = now }
}

// WithSleep replaces the wait primitive.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleepFn = sleep }
}

// WithWaitObserver registers a hook called with every window wait.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(l *Limiter) { l.onWait = fn }
}

// New constructs a Limiter.
func New(opts Options, logger zerolog.Logger, options ...Option) *Limiter {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = defaultMaxRequests
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}

	l := &Limiter{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_limiter").Logger(),
		gate:    make(chan struct{}, 1),
		nowFn:   time.Now,
		sleepFn: Sleep,
	}
	for _, o := range options {
		if o != nil {
			o(l)
		}
	}
	return l
}

// Acquire blocks until a request fits inside the window and records it.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.gate }()

	if wait := l.pending(); wait > 0 {
		l.logger.Info().Dur("wait", wait).Msg("request window full, waiting")
		if l.onWait != nil {
			l.onWait(wait)
		}
		if err := l.sleepFn(ctx, wait); err != nil {
			return err
		}
	}

	l.mu.Lock()
	now := l.nowFn()
	l.prune(now)
	l.stamps = append(l.stamps, now)
	l.mu.Unlock()
	return nil
}

func (l *Limiter) pending() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	l.prune(now)
	if len(l.stamps) < l.opts.MaxRequests {
		return 0
	}
	return l.stamps[0].Add(l.opts.Window).Sub(now)
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.opts.Window)
	drop := 0
	for drop < len(l.stamps) && !l.stamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[drop:]...)
	}
}

// InWindow returns the number of requests recorded in the current window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.nowFn())
	return len(l.stamps)
}

// ReportRateLimited records a quota rejection seen on attempt (1-based) and
// returns how long the caller should back off.
func (l *Limiter) ReportRateLimited(attempt int) time.Duration {
	l.mu.Lock()
	l.consecutive++
	consecutive := l.consecutive
	l.mu.Unlock()

	delay := backoff(attempt, consecutive, l.opts.BaseBackoff, l.opts.MaxBackoff)
	l.logger.Warn().
		Int("attempt", attempt).
		Int("consecutive", consecutive).
		Dur("backoff", delay).
		Msg("rate limit detected")
	return delay
}

// ResetRejections clears the consecutive rejection counter after a success.
func (l *Limiter) ResetRejections() {
	l.mu.Lock()
	l.consecutive = 0
	l.mu.Unlock()
}

// Consecutive returns the current consecutive rejection count.
func (l *Limiter) Consecutive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consecutive
}

// Sleep waits for d or until ctx is done.
func (l *Limiter) Sleep(ctx context.Context, d time.Duration) error {
	return l.sleepFn(ctx, d)
}

// Backoff returns the default quota backoff for attempt (1-based) after
// consecutive back-to-back rejections: 60s doubling per attempt, scaled by
// min(consecutive, 3) once more than one rejection occurred, capped at 300s.
func Backoff(attempt, consecutive int) time.Duration {
	return backoff(attempt, consecutive, defaultBaseBackoff, defaultMaxBackoff)
}

func backoff(attempt, consecutive int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	if consecutive > 1 {
		factor := consecutive
		if factor > defaultMaxEscalation {
			factor = defaultMaxEscalation
		}
		delay *= time.Duration(factor)
	}
	if delay > max {
		delay = max
	}
	return delay
}

// Sleep is the context-aware default wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
