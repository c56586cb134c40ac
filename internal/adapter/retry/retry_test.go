package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftscan/confluence/internal/errs"
)

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NonTransientErrorReturnsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy, func(ctx context.Context) error {
		calls++
		return errs.New(errs.BadOHLCV, "bad bar")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a non-transient failure must not be retried")
	assert.True(t, errs.Is(err, errs.BadOHLCV))
}

func TestDo_TransientErrorRetriesUpToMaxThenReturnsLastErr(t *testing.T) {
	policy := Policy{BaseBackoff: time.Millisecond, MaxRetries: 2, JitterPct: 0}
	calls := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return errs.New(errs.RateLimited, "throttled")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "MaxRetries=2 means the initial attempt plus two retries")
	assert.True(t, errs.Is(err, errs.RateLimited))
}

func TestDo_ContextCancelledDuringBackoffReturnsContextError(t *testing.T) {
	policy := Policy{BaseBackoff: 200 * time.Millisecond, MaxRetries: 5, JitterPct: 0}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := Do(ctx, policy, func(ctx context.Context) error {
		return errs.New(errs.NetworkTransient, "timeout")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Call_CircuitOpensAfterFiveConsecutiveFailures(t *testing.T) {
	m := NewManager(Policy{BaseBackoff: time.Millisecond, MaxRetries: 0, JitterPct: 0}, 1000, 1000)
	calls := 0
	failingFn := func(ctx context.Context) error {
		calls++
		return errs.New(errs.BadOHLCV, "bad bar")
	}

	for i := 0; i < 5; i++ {
		err := m.Call(context.Background(), "kraken", "api.kraken.com", failingFn)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.BadOHLCV), "failures below the trip threshold pass the underlying error through unchanged")
	}
	assert.Equal(t, 5, calls)

	err := m.Call(context.Background(), "kraken", "api.kraken.com", failingFn)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DataUnavailable), "an open circuit must surface as DataUnavailable")
	assert.Equal(t, 5, calls, "the open circuit must short-circuit without invoking fn again")

	snap, ok := m.Metrics().GetMetrics("kraken")
	require.True(t, ok)
	assert.Equal(t, "open", snap.CircuitState)
	assert.Equal(t, int64(6), snap.TotalRequests)
	assert.Equal(t, int64(6), snap.FailedRequests)
}

func TestManager_Call_SuccessIsRecordedInMetrics(t *testing.T) {
	m := NewManager(DefaultPolicy, 1000, 1000)
	require.NoError(t, m.Call(context.Background(), "kraken", "api.kraken.com", func(ctx context.Context) error { return nil }))

	snap, ok := m.Metrics().GetMetrics("kraken")
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
	assert.Equal(t, "closed", snap.CircuitState)
}

func TestManager_Call_RespectsContextCancellationInRateLimiterWait(t *testing.T) {
	m := NewManager(DefaultPolicy, 0.0001, 1) // effectively no throughput after the first token
	ctx := context.Background()
	require.NoError(t, m.Call(ctx, "kraken", "api.kraken.com", func(ctx context.Context) error { return nil }))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Call(cancelled, "kraken", "api.kraken.com", func(ctx context.Context) error { return nil })
	require.Error(t, err)
}
