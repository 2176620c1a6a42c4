package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func TestAcquireBlocksWhenWindowFull(t *testing.T) {
	l := New(Options{Window: time.Second, MaxRequests: 2}, zerolog.Nop())

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
}

func TestAcquireWaitsUntilOldestExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var waits []time.Duration
	l := New(Options{Window: 10 * time.Second, MaxRequests: 2}, zerolog.Nop(),
		WithClock(clock.Now),
		WithSleep(clock.Sleep),
		WithWaitObserver(func(d time.Duration) { waits = append(waits, d) }),
	)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	clock.Sleep(ctx, 3*time.Second)
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	require.Len(t, waits, 1)
	assert.Equal(t, 7*time.Second, waits[0])
	assert.Equal(t, 2, l.InWindow())
}

func TestAcquireHonoursContext(t *testing.T) {
	l := New(Options{Window: time.Hour, MaxRequests: 1}, zerolog.Nop())
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)
}

func TestAcquireConcurrentCallersAllRecorded(t *testing.T) {
	l := New(Options{Window: time.Minute, MaxRequests: 100}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, l.InWindow())
}

func TestBackoffGrowth(t *testing.T) {
	assert.Equal(t, 60*time.Second, Backoff(1, 1))
	assert.Equal(t, 120*time.Second, Backoff(2, 1))
	assert.Equal(t, 240*time.Second, Backoff(3, 1))
	assert.Equal(t, 300*time.Second, Backoff(4, 1))
}

func TestBackoffEscalation(t *testing.T) {
	assert.Equal(t, 120*time.Second, Backoff(1, 2))
	assert.Equal(t, 180*time.Second, Backoff(1, 3))
	assert.Equal(t, 180*time.Second, Backoff(1, 7))
	assert.Equal(t, 240*time.Second, Backoff(2, 2))
	assert.Equal(t, 300*time.Second, Backoff(3, 2))
}

func TestReportRateLimitedTracksConsecutive(t *testing.T) {
	l := New(Options{}, zerolog.Nop())

	assert.Equal(t, 60*time.Second, l.ReportRateLimited(1))
	assert.Equal(t, 240*time.Second, l.ReportRateLimited(2))
	assert.Equal(t, 300*time.Second, l.ReportRateLimited(3))
	assert.Equal(t, 3, l.Consecutive())

	l.ResetRejections()
	assert.Equal(t, 0, l.Consecutive())
	assert.Equal(t, 60*time.Second, l.ReportRateLimited(1))
}

func TestReportRateLimitedUsesConfiguredScale(t *testing.T) {
	l := New(Options{BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond}, zerolog.Nop())
	assert.Equal(t, time.Millisecond, l.ReportRateLimited(1))
	assert.Equal(t, 4*time.Millisecond, l.ReportRateLimited(2))
	assert.Equal(t, 10*time.Millisecond, l.ReportRateLimited(3))
}
