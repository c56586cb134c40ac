package indicator

import (
	"context"
	"math"

	"github.com/driftscan/confluence/internal/adapter"
	"github.com/driftscan/confluence/internal/cache"
	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/ingest"
)

// BuiltinSource computes indicator snapshots directly from cached/fetched
// OHLCV bars using plain closed-form formulas. It exists because no example
// repo in this module's lineage imports a third-party technical-analysis
// library; see DESIGN.md for why this single concern stays on stdlib math.
type BuiltinSource struct {
	Exchange adapter.Exchange
	Cache    *cache.Manager
	MinBars  int
}

// NewBuiltinSource builds a source fetching through the same ingest path the
// pipeline uses, so a prior ingest.Assemble call for the same symbol/tf
// leaves this source's fetch as a cache hit.
func NewBuiltinSource(ex adapter.Exchange, cacheMgr *cache.Manager) *BuiltinSource {
	return &BuiltinSource{Exchange: ex, Cache: cacheMgr, MinBars: 60}
}

func (s *BuiltinSource) Compute(symbol string, timeframes []string) (Set, error) {
	set := Set{Symbol: symbol, ByTF: make(map[string]Snapshot, len(timeframes))}
	ctx := context.Background()
	for _, tfStr := range timeframes {
		tf := ohlcv.Timeframe(tfStr)
		bundle, err := ingest.Assemble(ctx, s.Exchange, s.Cache, symbol, []ingest.Requirement{{Timeframe: tf, MinBars: s.MinBars}})
		if err != nil {
			continue // partial indicator coverage is tolerated; factors degrade on missing TFs
		}
		series, ok := bundle.Series[tf]
		if !ok || len(series) == 0 {
			continue
		}
		set.ByTF[tfStr] = computeSnapshot(tfStr, series)
	}
	return set, nil
}

func computeSnapshot(tf string, series ohlcv.Series) Snapshot {
	closes := closesOf(series)
	snap := Snapshot{Timeframe: tf, AsOf: series[len(series)-1].Timestamp}

	atrSeries := atrSeries(series, 14)
	if len(atrSeries) > 0 {
		snap.ATR = atrSeries[len(atrSeries)-1]
		snap.ATRSeries = atrSeries
	}

	mid, upper, lower := bollinger(closes, 20, 2.0)
	snap.BBMiddle, snap.BBUpper, snap.BBLower = mid, upper, lower

	kcUpper, kcLower := keltner(mid, snap.ATR, 1.5)
	snap.KCUpper, snap.KCLower = kcUpper, kcLower

	snap.TTMSqueezeOn = snap.BBUpper < kcUpper && snap.BBLower > kcLower
	snap.TTMSqueezeFiring = !snap.TTMSqueezeOn && len(atrSeries) >= 2 && atrSeries[len(atrSeries)-1] > atrSeries[len(atrSeries)-2]

	if rsi, ok := rsi14(closes); ok {
		snap.HasRSI, snap.RSI = true, rsi
	}
	if hist, ok := macdHistogram(closes); ok {
		snap.HasMACD, snap.MACDHistogram = true, hist
	}
	return snap
}

func closesOf(series ohlcv.Series) []float64 {
	out := make([]float64, len(series))
	for i, b := range series {
		out[i] = b.Close
	}
	return out
}

func trueRange(prev, cur ohlcv.Bar) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

func atrSeries(series ohlcv.Series, period int) []float64 {
	if len(series) < period+1 {
		return nil
	}
	trs := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		trs = append(trs, trueRange(series[i-1], series[i]))
	}
	out := make([]float64, 0, len(trs)-period+1)
	var sum float64
	for i, tr := range trs {
		sum += tr
		if i == period-1 {
			out = append(out, sum/float64(period))
		} else if i >= period {
			prevATR := out[len(out)-1]
			atr := (prevATR*float64(period-1) + tr) / float64(period)
			out = append(out, atr)
		}
	}
	return out
}

func sma(xs []float64, period int) float64 {
	if len(xs) < period {
		period = len(xs)
	}
	if period == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs[len(xs)-period:] {
		sum += x
	}
	return sum / float64(period)
}

func stddev(xs []float64, period int, mean float64) float64 {
	if len(xs) < period {
		period = len(xs)
	}
	if period == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs[len(xs)-period:] {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(period))
}

func bollinger(closes []float64, period int, mult float64) (mid, upper, lower float64) {
	mid = sma(closes, period)
	sd := stddev(closes, period, mid)
	return mid, mid + mult*sd, mid - mult*sd
}

func keltner(mid, atr, mult float64) (upper, lower float64) {
	return mid + mult*atr, mid - mult*atr
}

func ema(xs []float64, period int) []float64 {
	if len(xs) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(xs))
	out[period-1] = sma(xs[:period], period)
	for i := period; i < len(xs); i++ {
		out[i] = xs[i]*k + out[i-1]*(1-k)
	}
	return out[period-1:]
}

func rsi14(closes []float64) (float64, bool) {
	const period = 14
	if len(closes) < period+1 {
		return 0, false
	}
	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100, true
	}
	rs := (gains / period) / (losses / period)
	return 100 - 100/(1+rs), true
}

func macdHistogram(closes []float64) (float64, bool) {
	fast := ema(closes, 12)
	slow := ema(closes, 26)
	if fast == nil || slow == nil {
		return 0, false
	}
	n := len(slow)
	macdLine := make([]float64, n)
	offset := len(fast) - n
	for i := 0; i < n; i++ {
		macdLine[i] = fast[i+offset] - slow[i]
	}
	signal := ema(macdLine, 9)
	if signal == nil {
		return 0, false
	}
	return macdLine[len(macdLine)-1] - signal[len(signal)-1], true
}
