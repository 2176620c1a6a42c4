package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"wallet-x-search/internal/agent"
	"wallet-x-search/internal/model"
)

type stubExistence struct {
	mu     sync.Mutex
	calls  map[string]int
	answer func(wallet string) agent.ExistenceResult
}

func (s *stubExistence) Check(_ context.Context, wallet string) agent.ExistenceResult {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[wallet]++
	s.mu.Unlock()
	return s.answer(wallet)
}

type stubOwnership struct {
	mu     sync.Mutex
	calls  map[string]int
	answer func(wallet string) agent.OwnershipResult
}

func (s *stubOwnership) Analyze(_ context.Context, wallet string) agent.OwnershipResult {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[wallet]++
	s.mu.Unlock()
	return s.answer(wallet)
}

func (s *stubOwnership) count(wallet string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[wallet]
}

func newTestOrchestrator(ex ExistenceChecker, own OwnershipAnalyzer, opts Options) *Orchestrator {
	o := New(ex, own, opts, zerolog.Nop())
	o.sleepFn = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return o
}

func wallets(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("WALLET_%03d", i)
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	ex := &stubExistence{answer: func(w string) agent.ExistenceResult {
		if w == "WALLET_A" {
			return agent.ExistenceResult{PostExists: false, RawText: "false"}
		}
		return agent.ExistenceResult{PostExists: true, RawText: "true"}
	}}
	own := &stubOwnership{answer: func(w string) agent.OwnershipResult {
		return agent.OwnershipResult{Handle: "holder99", Confidence: model.ConfidenceHigh, HasConfidence: true, RawText: "Username: @holder99\nconfidence: high"}
	}}
	o := newTestOrchestrator(ex, own, Options{Concurrency: 2})

	got, err := o.SearchWallets(context.Background(), []string{"WALLET_A", "WALLET_B"}, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byWallet := map[string]model.Verdict{}
	for _, v := range got {
		byWallet[v.Wallet] = v
	}

	a := byWallet["WALLET_A"]
	assert.False(t, a.PostExists)
	assert.Equal(t, model.ConfidenceNone, a.Confidence)
	assert.False(t, a.HasHandle())
	assert.Empty(t, a.Error)

	b := byWallet["WALLET_B"]
	assert.True(t, b.PostExists)
	assert.Equal(t, "@holder99", b.Handle)
	assert.Equal(t, model.ConfidenceHigh, b.Confidence)

	assert.Zero(t, own.count("WALLET_A"))
	assert.Equal(t, 1, own.count("WALLET_B"))
}

func TestShortCircuitSkipsOwnership(t *testing.T) {
	ex := &stubExistence{answer: func(string) agent.ExistenceResult {
		return agent.ExistenceResult{PostExists: false, RawText: "false"}
	}}
	own := &stubOwnership{answer: func(string) agent.OwnershipResult {
		t.Fatal("ownership must not run")
		return agent.OwnershipResult{}
	}}
	v := newTestOrchestrator(ex, own, Options{}).SearchWallet(context.Background(), "W")
	assert.False(t, v.PostExists)
	assert.Equal(t, "false", v.RawText)
}

func TestUnattributedVerdictShape(t *testing.T) {
	ex := &stubExistence{answer: func(string) agent.ExistenceResult { return agent.ExistenceResult{PostExists: true} }}

	t.Run("best effort confidence", func(t *testing.T) {
		own := &stubOwnership{answer: func(string) agent.OwnershipResult {
			return agent.OwnershipResult{Confidence: model.ConfidenceMedium, HasConfidence: true, RawText: "moderate", Err: agent.ErrHandleNotParsable}
		}}
		v := newTestOrchestrator(ex, own, Options{}).SearchWallet(context.Background(), "W")
		assert.True(t, v.PostExists)
		assert.False(t, v.HasHandle())
		assert.Equal(t, model.ConfidenceMedium, v.Confidence)
		assert.Equal(t, "handle not parsable", v.Error)
	})

	t.Run("fallback low", func(t *testing.T) {
		own := &stubOwnership{answer: func(string) agent.OwnershipResult {
			return agent.OwnershipResult{Err: errors.New("retries exhausted: boom")}
		}}
		v := newTestOrchestrator(ex, own, Options{}).SearchWallet(context.Background(), "W")
		assert.True(t, v.PostExists)
		assert.Equal(t, model.ConfidenceLow, v.Confidence)
		assert.Contains(t, v.Error, "boom")
	})
}

func TestExistenceFailureCarriesError(t *testing.T) {
	ex := &stubExistence{answer: func(string) agent.ExistenceResult {
		return agent.ExistenceResult{RawText: "Error: down", Err: errors.New("down")}
	}}
	v := newTestOrchestrator(ex, &stubOwnership{}, Options{}).SearchWallet(context.Background(), "W")
	assert.False(t, v.PostExists)
	assert.Equal(t, "down", v.Error)
}

func TestCardinality(t *testing.T) {
	for _, n := range []int{0, 1, 7, 10, 23} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ex := &stubExistence{answer: func(w string) agent.ExistenceResult {
				return agent.ExistenceResult{RawText: "Error: x", Err: errors.New("x")}
			}}
			o := newTestOrchestrator(ex, &stubOwnership{}, Options{Concurrency: 3})

			var callbacks atomic.Int64
			got, err := o.SearchWallets(context.Background(), wallets(n), func(ctx context.Context, v model.Verdict) error {
				callbacks.Add(1)
				return nil
			}, nil)
			require.NoError(t, err)
			assert.Len(t, got, n)
			assert.Equal(t, int64(n), callbacks.Load())
		})
	}
}

func TestPanicBecomesDegradedVerdict(t *testing.T) {
	ex := &stubExistence{answer: func(w string) agent.ExistenceResult {
		if w == "WALLET_001" {
			panic("defect")
		}
		return agent.ExistenceResult{RawText: "false"}
	}}
	o := newTestOrchestrator(ex, &stubOwnership{}, Options{Concurrency: 2})

	var seen sync.Map
	got, err := o.SearchWallets(context.Background(), wallets(4), func(ctx context.Context, v model.Verdict) error {
		_, loaded := seen.LoadOrStore(v.Wallet, v)
		assert.False(t, loaded, "callback fired twice for %s", v.Wallet)
		return nil
	}, nil)
	require.NoError(t, err)
	require.Len(t, got, 4)

	raw, ok := seen.Load("WALLET_001")
	require.True(t, ok)
	failed := raw.(model.Verdict)
	assert.False(t, failed.PostExists)
	assert.Equal(t, model.ConfidenceNone, failed.Confidence)
	assert.Equal(t, "defect", failed.Error)
}

func TestCallbackErrorDoesNotDropVerdict(t *testing.T) {
	ex := &stubExistence{answer: func(string) agent.ExistenceResult { return agent.ExistenceResult{} }}
	o := newTestOrchestrator(ex, &stubOwnership{}, Options{Concurrency: 1})

	got, err := o.SearchWallets(context.Background(), wallets(3), func(ctx context.Context, v model.Verdict) error {
		return errors.New("sink down")
	}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestProgressPerSubBatch(t *testing.T) {
	ex := &stubExistence{answer: func(string) agent.ExistenceResult { return agent.ExistenceResult{} }}
	o := newTestOrchestrator(ex, &stubOwnership{}, Options{Concurrency: 2})

	var progress [][2]int
	_, err := o.SearchWallets(context.Background(), wallets(9), nil, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{4, 9}, {8, 9}, {9, 9}}, progress)
}

func TestSubBatchesAreSequential(t *testing.T) {
	ex := &stubExistence{answer: func(w string) agent.ExistenceResult {
		time.Sleep(time.Millisecond)
		return agent.ExistenceResult{}
	}}
	o := newTestOrchestrator(ex, &stubOwnership{}, Options{Concurrency: 2})

	input := wallets(10)
	got, err := o.SearchWallets(context.Background(), input, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 10)

	position := map[string]int{}
	for i, w := range input {
		position[w] = i
	}
	for i, v := range got {
		assert.Equal(t, i/4, position[v.Wallet]/4, "verdict %d from wrong sub-batch", i)
	}
}

func TestConcurrencyCapHonoured(t *testing.T) {
	var inFlight, peak atomic.Int64
	ex := &stubExistence{answer: func(string) agent.ExistenceResult {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return agent.ExistenceResult{}
	}}
	o := newTestOrchestrator(ex, &stubOwnership{}, Options{Concurrency: 3})

	_, err := o.SearchWallets(context.Background(), wallets(12), nil, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Positive(t, peak.Load())
}

func TestSharedGateAcrossOrchestrators(t *testing.T) {
	var inFlight, peak atomic.Int64
	answer := func(string) agent.ExistenceResult {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return agent.ExistenceResult{}
	}
	gate := semaphore.NewWeighted(2)
	a := newTestOrchestrator(&stubExistence{answer: answer}, &stubOwnership{}, Options{Concurrency: 2, Gate: gate})
	b := newTestOrchestrator(&stubExistence{answer: answer}, &stubOwnership{}, Options{Concurrency: 2, Gate: gate})

	var wg sync.WaitGroup
	for _, o := range []*Orchestrator{a, b} {
		wg.Add(1)
		go func(o *Orchestrator) {
			defer wg.Done()
			_, err := o.SearchWallets(context.Background(), wallets(8), nil, nil)
			assert.NoError(t, err)
		}(o)
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestCancelledContextStopsBeforeNextBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ex := &stubExistence{answer: func(string) agent.ExistenceResult { return agent.ExistenceResult{} }}
	o := newTestOrchestrator(ex, &stubOwnership{}, Options{Concurrency: 1})

	got, err := o.SearchWallets(ctx, wallets(6), nil, func(done, total int) {
		if done == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got, 2)
}
