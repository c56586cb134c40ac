package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftscan/confluence/internal/adapter"
	"github.com/driftscan/confluence/internal/cache"
	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/errs"
)

type fakeExchange struct {
	bars map[ohlcv.Timeframe]ohlcv.Series
	err  map[ohlcv.Timeframe]error
	hits int
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) FetchOHLCV(ctx context.Context, symbol string, tf ohlcv.Timeframe, limit int, since *time.Time) (ohlcv.Series, error) {
	f.hits++
	if err, ok := f.err[tf]; ok {
		return nil, err
	}
	return f.bars[tf], nil
}

func (f *fakeExchange) FetchTicker(ctx context.Context, symbol string) (adapter.Ticker, error) {
	return adapter.Ticker{}, nil
}

func (f *fakeExchange) ListTopSymbols(ctx context.Context, n int, quoteCurrency string) ([]string, error) {
	return nil, nil
}

func (f *fakeExchange) IsPerpetual(symbol string) bool { return false }

func validSeries(n int, tf ohlcv.Timeframe) ohlcv.Series {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(ohlcv.Series, n)
	for i := 0; i < n; i++ {
		s[i] = ohlcv.Bar{Timestamp: base.Add(time.Duration(i) * tf.Duration()), Open: 100, High: 105, Low: 95, Close: 101, Volume: 10}
	}
	return s
}

func TestAssemble_PrimaryHTFUnavailableFailsWholeSymbol(t *testing.T) {
	ex := &fakeExchange{err: map[ohlcv.Timeframe]error{PrimaryHTF: errs.New(errs.DataUnavailable, "down")}}
	_, err := Assemble(context.Background(), ex, cache.Get(), "ASSEMBLE-PRIMARY-FAIL", []Requirement{{Timeframe: PrimaryHTF, MinBars: 10}})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DataUnavailable))
}

func TestAssemble_NonPrimaryTimeframeLossIsTolerated(t *testing.T) {
	ex := &fakeExchange{
		bars: map[ohlcv.Timeframe]ohlcv.Series{PrimaryHTF: validSeries(20, PrimaryHTF)},
		err:  map[ohlcv.Timeframe]error{ohlcv.TF1h: errs.New(errs.DataUnavailable, "down")},
	}
	bundle, err := Assemble(context.Background(), ex, cache.Get(), "ASSEMBLE-TOLERATE-1H", []Requirement{
		{Timeframe: PrimaryHTF, MinBars: 10},
		{Timeframe: ohlcv.TF1h, MinBars: 10},
	})
	require.NoError(t, err)
	assert.Contains(t, bundle.Series, PrimaryHTF)
	assert.NotContains(t, bundle.Series, ohlcv.TF1h)
}

func TestAssemble_InsufficientBarsAfterCleaningRejectsThatTimeframe(t *testing.T) {
	ex := &fakeExchange{bars: map[ohlcv.Timeframe]ohlcv.Series{PrimaryHTF: validSeries(5, PrimaryHTF)}}
	_, err := Assemble(context.Background(), ex, cache.Get(), "ASSEMBLE-TOO-FEW", []Requirement{{Timeframe: PrimaryHTF, MinBars: 10}})
	require.Error(t, err, "too few bars on the primary HTF fails the whole symbol")
}

func TestAssemble_MalformedBarsAreDroppedBeforeCountingMinBars(t *testing.T) {
	series := validSeries(12, PrimaryHTF)
	series[3].High = series[3].Low - 1 // violates High >= Low
	ex := &fakeExchange{bars: map[ohlcv.Timeframe]ohlcv.Series{PrimaryHTF: series}}
	_, err := Assemble(context.Background(), ex, cache.Get(), "ASSEMBLE-DROP-BAD-BAR", []Requirement{{Timeframe: PrimaryHTF, MinBars: 12}})
	require.Error(t, err, "one bad bar drops the count below MinBars")
}

func TestAssemble_CachedSeriesAvoidsRefetch(t *testing.T) {
	ex := &fakeExchange{bars: map[ohlcv.Timeframe]ohlcv.Series{PrimaryHTF: validSeries(20, PrimaryHTF)}}
	symbol := "ASSEMBLE-CACHE-HIT"
	reqs := []Requirement{{Timeframe: PrimaryHTF, MinBars: 10}}

	_, err := Assemble(context.Background(), ex, cache.Get(), symbol, reqs)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.hits)

	_, err = Assemble(context.Background(), ex, cache.Get(), symbol, reqs)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.hits, "the second Assemble call should be served entirely from cache")
}
