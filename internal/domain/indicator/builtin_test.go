package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftscan/confluence/internal/domain/ohlcv"
)

func bar(t time.Time, high, low, close float64) ohlcv.Bar {
	return ohlcv.Bar{Timestamp: t, Open: close, High: high, Low: low, Close: close, Volume: 1}
}

func TestTrueRange_PicksLargestOfThreeRanges(t *testing.T) {
	prev := bar(time.Unix(0, 0), 15, 10, 10)
	cur := bar(time.Unix(1, 0), 15, 12, 14)
	// hl=3, hc=|15-10|=5, lc=|12-10|=2 -> max is hc=5
	assert.Equal(t, 5.0, trueRange(prev, cur))
}

func TestATRSeries_ShortSeriesReturnsNil(t *testing.T) {
	base := time.Unix(0, 0)
	series := ohlcv.Series{bar(base, 10, 10, 10), bar(base.Add(time.Hour), 10, 10, 10)}
	assert.Nil(t, atrSeries(series, 14))
}

func TestATRSeries_WilderSmoothingAfterSeed(t *testing.T) {
	base := time.Unix(0, 0)
	series := ohlcv.Series{
		bar(base, 10, 10, 10),
		bar(base.Add(time.Hour), 13, 9, 11),
		bar(base.Add(2*time.Hour), 14, 10, 12),
		bar(base.Add(3*time.Hour), 15, 11, 13),
		bar(base.Add(4*time.Hour), 20, 12, 14),
	}
	got := atrSeries(series, 3)
	require.Len(t, got, 2)
	assert.InDelta(t, 4.0, got[0], 1e-9, "seed ATR is the plain average of the first 3 true ranges")
	assert.InDelta(t, 16.0/3.0, got[1], 1e-9, "subsequent ATR uses Wilder smoothing against the prior value")
}

func TestSMA_UsesOnlyTrailingWindow(t *testing.T) {
	assert.Equal(t, 4.0, sma([]float64{1, 2, 3, 4, 5}, 3))
}

func TestSMA_ShorterThanPeriodUsesWholeSlice(t *testing.T) {
	assert.Equal(t, 2.0, sma([]float64{1, 2, 3}, 10))
}

func TestSMA_EmptySliceIsZero(t *testing.T) {
	assert.Equal(t, 0.0, sma(nil, 5))
}

func TestStddev_PopulationFormula(t *testing.T) {
	got := stddev([]float64{1, 2, 3}, 3, 2)
	assert.InDelta(t, 0.8165, got, 1e-4)
}

func TestBollinger_BandsStraddleMidpoint(t *testing.T) {
	mid, upper, lower := bollinger([]float64{1, 2, 3}, 3, 2.0)
	assert.Equal(t, 2.0, mid)
	assert.InDelta(t, 3.633, upper, 1e-3)
	assert.InDelta(t, 0.367, lower, 1e-3)
}

func TestKeltner_BandsFromATRMultiple(t *testing.T) {
	upper, lower := keltner(10, 2, 1.5)
	assert.Equal(t, 13.0, upper)
	assert.Equal(t, 7.0, lower)
}

func TestEMA_SeedsWithSMAThenSmooths(t *testing.T) {
	got := ema([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 2.0, got[0], "seed value is the SMA of the first `period` inputs")
	assert.Equal(t, 3.0, got[1])
	assert.Equal(t, 4.0, got[2])
}

func TestEMA_ShorterThanPeriodIsNil(t *testing.T) {
	assert.Nil(t, ema([]float64{1, 2}, 5))
}

func TestRSI14_AllGainsIsMax(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, ok := rsi14(closes)
	require.True(t, ok)
	assert.Equal(t, 100.0, rsi)
}

func TestRSI14_MixedGainsAndLossesInRange(t *testing.T) {
	closes := make([]float64, 15)
	closes[0] = 100
	for i := 1; i < 15; i++ {
		if i%2 == 1 {
			closes[i] = closes[i-1] + 2
		} else {
			closes[i] = closes[i-1] - 1
		}
	}
	rsi, ok := rsi14(closes)
	require.True(t, ok)
	// 7 gains of 2, 7 losses of 1 -> rs=(14/14)/(7/14)=2 -> rsi=100-100/3
	assert.InDelta(t, 100-100.0/3.0, rsi, 1e-9)
}

func TestRSI14_TooFewClosesIsUnavailable(t *testing.T) {
	_, ok := rsi14(make([]float64, 10))
	assert.False(t, ok)
}

func TestMACDHistogram_TooFewClosesIsUnavailable(t *testing.T) {
	_, ok := macdHistogram(make([]float64, 30))
	assert.False(t, ok)
}

func TestMACDHistogram_AcceleratingUptrendIsPositive(t *testing.T) {
	// A linear uptrend gives a constant MACD line and so a zero histogram;
	// an accelerating one keeps the MACD line rising above its signal line.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 0.1*float64(i*i)
	}
	hist, ok := macdHistogram(closes)
	require.True(t, ok)
	assert.Greater(t, hist, 0.0, "an accelerating uptrend's MACD line should track ahead of its signal line")
}

func TestComputeSnapshot_WiresAllSubIndicatorsTogether(t *testing.T) {
	base := time.Unix(0, 0)
	n := 60
	series := make(ohlcv.Series, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i%5 == 0 {
			price += 3
		} else {
			price -= 1
		}
		series[i] = bar(base.Add(time.Duration(i)*time.Hour), price+2, price-2, price)
	}

	snap := computeSnapshot("1h", series)

	assert.Equal(t, "1h", snap.Timeframe)
	assert.Equal(t, series[n-1].Timestamp, snap.AsOf)
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.BBUpper, snap.BBMiddle)
	assert.Greater(t, snap.BBMiddle, snap.BBLower)
	assert.Greater(t, snap.KCUpper, snap.KCLower)
	require.True(t, snap.HasRSI)
	require.True(t, snap.HasMACD)
}
