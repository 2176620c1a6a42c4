package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsOnErrStop(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, Immediate: true}, zerolog.Nop())

	var calls atomic.Int32
	err := s.Run(context.Background(), func(ctx context.Context, _ time.Time) error {
		if calls.Add(1) == 3 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRunContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	var calls atomic.Int32
	err := s.Run(context.Background(), func(ctx context.Context, _ time.Time) error {
		if calls.Add(1) < 2 {
			return errors.New("transient")
		}
		return ErrStop
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRunHonoursCancellation(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(ctx context.Context, _ time.Time) error {
		t.Fatal("tick should not run")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestImmediateTickRunsWithoutWaiting(t *testing.T) {
	s := New(Options{Interval: time.Hour, Immediate: true}, zerolog.Nop())

	start := time.Now()
	err := s.Run(context.Background(), func(ctx context.Context, _ time.Time) error {
		return ErrStop
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2025, 1, 1, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 10, 0, 0, time.UTC), s.nextTick(now))
}
