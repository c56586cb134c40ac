package scanjob

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftscan/confluence/internal/adapter"
	"github.com/driftscan/confluence/internal/cache"
	"github.com/driftscan/confluence/internal/cooldown"
	"github.com/driftscan/confluence/internal/domain/indicator"
	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/domain/scoring"
	"github.com/driftscan/confluence/internal/domain/smc"
	"github.com/driftscan/confluence/internal/errs"
	"github.com/driftscan/confluence/internal/pipeline"
	"github.com/driftscan/confluence/internal/risk"
	"github.com/driftscan/confluence/internal/telemetry"
)

type fakeExchange struct {
	delay time.Duration
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) FetchOHLCV(ctx context.Context, symbol string, tf ohlcv.Timeframe, limit int, since *time.Time) (ohlcv.Series, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Cancelled, "cancelled", ctx.Err())
		}
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := limit
	if n < 60 {
		n = 60
	}
	s := make(ohlcv.Series, n)
	for i := 0; i < n; i++ {
		s[i] = ohlcv.Bar{Timestamp: base.Add(time.Duration(i) * tf.Duration()), Open: 100, High: 105, Low: 95, Close: 101, Volume: 10}
	}
	return s, nil
}

func (f *fakeExchange) FetchTicker(ctx context.Context, symbol string) (adapter.Ticker, error) {
	return adapter.Ticker{}, nil
}

func (f *fakeExchange) ListTopSymbols(ctx context.Context, n int, quoteCurrency string) ([]string, error) {
	return nil, nil
}

func (f *fakeExchange) IsPerpetual(symbol string) bool { return false }

type fakeIndicatorSource struct{}

func (fakeIndicatorSource) Compute(symbol string, timeframes []string) (indicator.Set, error) {
	return indicator.Set{Symbol: symbol, ByTF: map[string]indicator.Snapshot{}}, nil
}

func newDeps(t *testing.T, ex adapter.Exchange) pipeline.Deps {
	t.Helper()
	riskMgr, err := risk.NewManager(risk.DefaultConfig(), 10000)
	require.NoError(t, err)
	cooldownStore, err := cooldown.Open(filepath.Join(t.TempDir(), "cooldowns.json"))
	require.NoError(t, err)

	return pipeline.Deps{
		Exchange:      ex,
		Cache:         cache.Get(),
		Indicators:    fakeIndicatorSource{},
		Patterns:      smc.NullDetector{},
		Risk:          riskMgr,
		Cooldowns:     cooldownStore,
		Telemetry:     telemetry.NewSink(),
		Weights:       map[string]float64{},
		MinConfluence: 0,
	}
}

func TestCreateScan_CompletesAndRecordsAllSymbols(t *testing.T) {
	m := NewManager(2)
	deps := newDeps(t, &fakeExchange{})
	symbols := []string{"SCANJOB-A", "SCANJOB-B", "SCANJOB-C"}

	runID := m.CreateScan(context.Background(), symbols, scoring.Long, deps)

	var job Job
	require.Eventually(t, func() bool {
		j, ok := m.GetJob(runID)
		if !ok {
			return false
		}
		job = j
		return job.Status == Completed || job.Status == Failed
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, Completed, job.Status)
	assert.Equal(t, len(symbols), job.Progress)
	assert.Equal(t, len(symbols), len(job.Signals)+len(job.Rejections))
	assert.False(t, job.CompletedAt.IsZero())
}

func TestGetJob_UnknownRunIDReturnsFalse(t *testing.T) {
	m := NewManager(2)
	_, ok := m.GetJob("nonexistent")
	assert.False(t, ok)
}

func TestCancel_TerminalJobReturnsFalse(t *testing.T) {
	m := NewManager(1)
	deps := newDeps(t, &fakeExchange{})
	runID := m.CreateScan(context.Background(), []string{"SCANJOB-CANCEL-TERMINAL"}, scoring.Long, deps)

	require.Eventually(t, func() bool {
		j, ok := m.GetJob(runID)
		return ok && (j.Status == Completed || j.Status == Failed)
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, m.Cancel(runID))
}

func TestCancel_RunningJobStopsRemainingSymbolsEarly(t *testing.T) {
	m := NewManager(1)
	deps := newDeps(t, &fakeExchange{delay: 200 * time.Millisecond})
	symbols := []string{"SCANJOB-CANCEL-1", "SCANJOB-CANCEL-2", "SCANJOB-CANCEL-3"}
	runID := m.CreateScan(context.Background(), symbols, scoring.Long, deps)

	require.Eventually(t, func() bool {
		j, ok := m.GetJob(runID)
		return ok && j.Status == Running
	}, time.Second, 2*time.Millisecond)

	assert.True(t, m.Cancel(runID))

	var job Job
	require.Eventually(t, func() bool {
		j, ok := m.GetJob(runID)
		if !ok {
			return false
		}
		job = j
		return job.Status == Cancelled || job.Status == Failed
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, len(symbols), job.Total, "Total reflects the full requested batch even when cancelled early")
	assert.Less(t, job.Progress, len(symbols), "cancellation should stop the run before every symbol is processed")
}

func TestNewManager_NonPositiveWorkersDefaultsToSix(t *testing.T) {
	m := NewManager(0)
	assert.Equal(t, DefaultWorkers, m.workers)
}

func TestScheduler_StartThenStopDoesNotPanic(t *testing.T) {
	m := NewManager(1)
	deps := newDeps(t, &fakeExchange{})
	s := NewScheduler(m, deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, []Schedule{{Symbols: []string{"SCANJOB-SCHED"}, Direction: scoring.Long, Interval: 10 * time.Millisecond}})
	time.Sleep(30 * time.Millisecond)
	assert.NotPanics(t, s.Stop)
}
