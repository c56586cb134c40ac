// Package swing derives alternating swing-point structure and trend from a
// single timeframe's OHLCV sequence.
package swing

import (
	"math"

	"github.com/driftscan/confluence/internal/domain/ohlcv"
)

// Label classifies a swing point relative to the prior labeled swing of the
// same type.
type Label string

const (
	HH Label = "HH"
	HL Label = "HL"
	LH Label = "LH"
	LL Label = "LL"
)

// Trend is the derived directional bias of a swing structure.
type Trend string

const (
	Bullish Trend = "bullish"
	Bearish Trend = "bearish"
	Neutral Trend = "neutral"
)

// Point is one labeled swing.
type Point struct {
	Price    float64
	Index    int // bar index into the source series
	IsHigh   bool
	Strength float64 // |price - close[i]| / ATR[i]
	Label    Label
}

// Structure is the ordered sequence of swing points plus the derived trend.
type Structure struct {
	Points []Point
	Trend  Trend
}

// DefaultLookback is the symmetric window half-width used to find raw swing
// extrema when the caller does not scale it into the regime detector's
// [30,80] range.
const DefaultLookback = 5

// MinSwingATR is the default strength floor below which a raw swing is
// discarded.
const MinSwingATR = 0.5

// Compute derives the swing structure for one OHLCV series using the given
// lookback (symmetric window half-width) and minimum-strength floor in ATR
// units.
func Compute(series ohlcv.Series, lookback int, minSwingATR float64) Structure {
	n := len(series)
	if n == 0 || lookback <= 0 {
		return Structure{Trend: Neutral}
	}

	atr := atr14(series)

	type raw = struct {
		idx      int
		isHigh   bool
		price    float64
		strength float64
	}
	var candidates []raw

	for i := lookback; i < n-lookback; i++ {
		if atr[i] <= 0 {
			continue
		}
		if isSwingHigh(series, i, lookback) {
			candidates = append(candidates, raw{idx: i, isHigh: true, price: series[i].High,
				strength: math.Abs(series[i].High-series[i].Close) / atr[i]})
		}
		if isSwingLow(series, i, lookback) {
			candidates = append(candidates, raw{idx: i, isHigh: false, price: series[i].Low,
				strength: math.Abs(series[i].Low-series[i].Close) / atr[i]})
		}
	}

	// Deduplication: iterate sorted-by-time raw swings; whenever two
	// consecutive candidates are the same type, keep the more extreme one.
	// Repeat to a fixed point.
	dedup := dedupeToFixpoint(candidates)

	// Discard weak swings.
	var kept []raw
	for _, c := range dedup {
		if c.strength >= minSwingATR {
			kept = append(kept, c)
		}
	}

	points := make([]Point, 0, len(kept))
	var lastHigh, lastLow *Point
	for _, c := range kept {
		p := Point{Price: c.price, Index: c.idx, IsHigh: c.isHigh, Strength: c.strength}
		if c.isHigh {
			if lastHigh == nil {
				p.Label = HH
			} else if c.price > lastHigh.Price {
				p.Label = HH
			} else {
				p.Label = LH
			}
		} else {
			if lastLow == nil {
				p.Label = HL
			} else if c.price > lastLow.Price {
				p.Label = HL
			} else {
				p.Label = LL
			}
		}
		points = append(points, p)
		if c.isHigh {
			last := points[len(points)-1]
			lastHigh = &last
		} else {
			last := points[len(points)-1]
			lastLow = &last
		}
	}

	return Structure{Points: points, Trend: deriveTrend(points)}
}

func dedupeToFixpoint(in []struct {
	idx      int
	isHigh   bool
	price    float64
	strength float64
}) []struct {
	idx      int
	isHigh   bool
	price    float64
	strength float64
} {
	type raw = struct {
		idx      int
		isHigh   bool
		price    float64
		strength float64
	}
	cur := append([]raw(nil), in...)
	for {
		changed := false
		out := make([]raw, 0, len(cur))
		i := 0
		for i < len(cur) {
			if i+1 < len(cur) && cur[i].isHigh == cur[i+1].isHigh {
				keep := cur[i]
				if cur[i].isHigh {
					if cur[i+1].price > keep.price {
						keep = cur[i+1]
					}
				} else {
					if cur[i+1].price < keep.price {
						keep = cur[i+1]
					}
				}
				out = append(out, keep)
				i += 2
				changed = true
				continue
			}
			out = append(out, cur[i])
			i++
		}
		cur = out
		if !changed {
			return cur
		}
	}
}

func isSwingHigh(s ohlcv.Series, i, lookback int) bool {
	h := s[i].High
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if s[j].High > h {
			return false
		}
	}
	return true
}

func isSwingLow(s ohlcv.Series, i, lookback int) bool {
	l := s[i].Low
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if s[j].Low < l {
			return false
		}
	}
	return true
}

// atr14 computes a simple rolling 14-period average true range, index-aligned
// with the source series (first 14 entries are 0, insufficient history).
func atr14(s ohlcv.Series) []float64 {
	const period = 14
	out := make([]float64, len(s))
	if len(s) < period+1 {
		return out
	}
	tr := make([]float64, len(s))
	for i := 1; i < len(s); i++ {
		tr[i] = math.Max(s[i].High-s[i].Low,
			math.Max(math.Abs(s[i].High-s[i-1].Close), math.Abs(s[i].Low-s[i-1].Close)))
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / period
	for i := period + 1; i < len(s); i++ {
		out[i] = (out[i-1]*(period-1) + tr[i]) / period
	}
	return out
}

// deriveTrend applies the last-6-labels scoring rule: bullish if
// count(HH)+count(HL) > count(LH)+count(LL)+1, symmetric for bearish, else
// neutral.
func deriveTrend(points []Point) Trend {
	n := len(points)
	if n == 0 {
		return Neutral
	}
	start := 0
	if n > 6 {
		start = n - 6
	}
	var bull, bear int
	for _, p := range points[start:] {
		switch p.Label {
		case HH, HL:
			bull++
		case LH, LL:
			bear++
		}
	}
	if bull > bear+1 {
		return Bullish
	}
	if bear > bull+1 {
		return Bearish
	}
	return Neutral
}
