package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftscan/confluence/internal/domain/ohlcv"
)

// buildSeries makes an n-bar series with uniform Low=100/High=110/Close=105,
// then applies overrides for specific bar indices so Detect's low/high scan
// has unambiguous, known answers.
func buildSeries(n int, lowOverrides, highOverrides map[int]float64, closeOverrides map[int]float64) ohlcv.Series {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(ohlcv.Series, n)
	for i := 0; i < n; i++ {
		low, high, close := 100.0, 110.0, 105.0
		if v, ok := lowOverrides[i]; ok {
			low = v
		}
		if v, ok := highOverrides[i]; ok {
			high = v
		}
		if v, ok := closeOverrides[i]; ok {
			close = v
		}
		s[i] = ohlcv.Bar{Timestamp: base.AddDate(0, 0, i), Open: close, Close: close, High: high, Low: low, Volume: 1}
	}
	return s
}

func TestDetect_EmptySeriesIsUnknown(t *testing.T) {
	s := Detect(nil, DailyWindow[0], DailyWindow[1])
	assert.Equal(t, Unknown, s.Translation)
	assert.Equal(t, StatusUnknown, s.Status)
	assert.Equal(t, Neutral, s.Bias)
}

func TestDetect_RightTranslationHealthyAndLongBias(t *testing.T) {
	s := buildSeries(30,
		map[int]float64{10: 50},  // cycle low at bar 10
		map[int]float64{25: 200}, // peak at bar 25
		map[int]float64{29: 80},  // current price above the cycle low: not failed
	)
	got := Detect(s, DailyWindow[0], DailyWindow[1])

	require.Equal(t, 10, got.CycleLow.Bar)
	assert.Equal(t, 50.0, got.CycleLow.Price)
	assert.Equal(t, 19, got.BarsSinceLow)
	assert.True(t, got.IsInWindow)
	assert.Equal(t, RTR, got.Translation)
	assert.Equal(t, StatusHealthy, got.Status)
	assert.Equal(t, Long, got.Bias)
	assert.False(t, got.IsFailed)
}

func TestDetect_LeftTranslationIsWarningAndShortBias(t *testing.T) {
	s := buildSeries(30,
		map[int]float64{10: 50}, // cycle low at bar 10
		map[int]float64{12: 200}, // peak very early in the cycle -> LTR
		map[int]float64{29: 80},
	)
	got := Detect(s, DailyWindow[0], DailyWindow[1])

	assert.Equal(t, LTR, got.Translation)
	assert.Equal(t, StatusWarning, got.Status)
	assert.Equal(t, Short, got.Bias)
}

func TestDetect_CloseBelowCycleLowIsFailedRegardlessOfTranslation(t *testing.T) {
	s := buildSeries(30,
		map[int]float64{10: 50},
		map[int]float64{25: 200},
		map[int]float64{29: 40}, // below the cycle low of 50
	)
	got := Detect(s, DailyWindow[0], DailyWindow[1])

	assert.True(t, got.IsFailed)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, Short, got.Bias)
}

func TestCombine_AgreeingBiasesAreAligned(t *testing.T) {
	dcl := State{Bias: Long}
	wcl := State{Bias: Long}
	agg := Combine(dcl, wcl)
	assert.Equal(t, Aligned, agg.Alignment)
	assert.Equal(t, Long, agg.Bias)
}

func TestCombine_OpposingBiasesAreConflicting(t *testing.T) {
	agg := Combine(State{Bias: Long}, State{Bias: Short})
	assert.Equal(t, Conflicting, agg.Alignment)
	assert.Equal(t, Neutral, agg.Bias)
}

func TestCombine_OneNeutralIsMixed(t *testing.T) {
	agg := Combine(State{Bias: Long}, State{Bias: Neutral})
	assert.Equal(t, Mixed, agg.Alignment)
	assert.Equal(t, Neutral, agg.Bias)
}

func TestComputeMacro_PhaseBoundaries(t *testing.T) {
	low := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := MacroConfig{HistoricalLows: []time.Time{low}, CycleLengthDays: 1460}

	accum := ComputeMacro(cfg, low.AddDate(0, 0, 100)) // 100/1460 ~ 6.8%
	assert.Equal(t, Accumulation, accum.Phase)
	assert.Equal(t, MacroBullish, accum.MacroBias)
	assert.True(t, accum.OpportunityZone)

	markup := ComputeMacro(cfg, low.AddDate(0, 0, 500)) // ~34%
	assert.Equal(t, Markup, markup.Phase)
	assert.Equal(t, MacroBullish, markup.MacroBias)

	distribution := ComputeMacro(cfg, low.AddDate(0, 0, 950)) // ~65%
	assert.Equal(t, Distribution, distribution.Phase)
	assert.Equal(t, MacroNeutral, distribution.MacroBias)

	markdown := ComputeMacro(cfg, low.AddDate(0, 0, 1300)) // ~89%
	assert.Equal(t, Markdown, markdown.Phase)
	assert.Equal(t, MacroBearish, markdown.MacroBias)
	assert.True(t, markdown.DangerZone)
}

func TestComputeMacro_ClampsPositionPctAt100(t *testing.T) {
	low := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := MacroConfig{HistoricalLows: []time.Time{low}, CycleLengthDays: 100}
	got := ComputeMacro(cfg, low.AddDate(0, 0, 500))
	assert.Equal(t, 100.0, got.CyclePositionPct)
}

func TestComputeMacro_DefaultsCycleLengthWhenUnset(t *testing.T) {
	low := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := MacroConfig{HistoricalLows: []time.Time{low}}
	got := ComputeMacro(cfg, low.AddDate(0, 0, 100))
	assert.InDelta(t, 100.0/(4*365)*100, got.CyclePositionPct, 0.01)
}

func TestDefaultMacroConfig_AnchorsOnMostRecentHistoricalLow(t *testing.T) {
	asOf := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC) // ~192 days after 2022-11-21
	got := ComputeMacro(DefaultMacroConfig, asOf)
	assert.Equal(t, Accumulation, got.Phase)
	assert.Equal(t, MacroBullish, got.MacroBias)
}

func TestDefaultMacroConfig_UsesProjectedNextLowOnceItIsMostRecent(t *testing.T) {
	asOf := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) // past the 2026-11-21 projected low
	got := ComputeMacro(DefaultMacroConfig, asOf)
	assert.Less(t, got.DaysSinceLow, 60)
}
