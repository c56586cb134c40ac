// Package cycle detects per-symbol daily/weekly cycle lows and their
// translation, plus a date-driven macro four-year-cycle overlay.
package cycle

import (
	"time"

	"github.com/driftscan/confluence/internal/domain/ohlcv"
)

// Translation classifies where the cycle's peak fell within its elapsed
// duration.
type Translation string

const (
	RTR     Translation = "RTR"
	MTR     Translation = "MTR"
	LTR     Translation = "LTR"
	Unknown Translation = "UNKNOWN"
)

// Status summarizes the cycle's health.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusCaution Status = "caution"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusEarly   Status = "early"
	StatusUnknown Status = "unknown"
)

// Bias is the directional lean implied by the cycle state.
type Bias string

const (
	Long    Bias = "LONG"
	Short   Bias = "SHORT"
	Neutral Bias = "NEUTRAL"
)

// Low is an identified cycle low.
type Low struct {
	Price float64
	Bar   int
	At    time.Time
}

// State is one granularity's (daily or weekly) cycle reading.
type State struct {
	BarsSinceLow   int
	ExpectedMin    int
	ExpectedMax    int
	CycleLow       Low
	CycleHigh      float64
	PeakBar        int
	TranslationPct float64
	Translation    Translation
	IsFailed       bool
	IsInWindow     bool
	Status         Status
	Bias           Bias
}

// Window bounds for DCL/WCL cycle detection.
var (
	DailyWindow  = [2]int{18, 28}
	WeeklyWindow = [2]int{35, 50}
)

// Detect computes one granularity's cycle state from a daily (or weekly)
// OHLCV series, given the expected bar-count window.
func Detect(series ohlcv.Series, expectedMin, expectedMax int) State {
	n := len(series)
	if n == 0 {
		return State{ExpectedMin: expectedMin, ExpectedMax: expectedMax, Translation: Unknown, Status: StatusUnknown, Bias: Neutral}
	}

	low := findCycleLow(series, expectedMax)
	barsSinceLow := (n - 1) - low.Bar

	cycleHigh, peakBar := findHighSince(series, low.Bar)
	peakOffset := peakBar - low.Bar

	var translationPct float64
	if barsSinceLow > 0 {
		translationPct = 100 * float64(peakOffset) / float64(barsSinceLow)
	}
	translation := classifyTranslation(translationPct)

	currentPrice := series[n-1].Close
	isFailed := currentPrice < low.Price
	isInWindow := barsSinceLow >= expectedMin && barsSinceLow <= expectedMax

	status := classifyStatus(isFailed, translation, barsSinceLow, expectedMin)
	bias := classifyBias(isFailed, translation)

	return State{
		BarsSinceLow: barsSinceLow, ExpectedMin: expectedMin, ExpectedMax: expectedMax,
		CycleLow: low, CycleHigh: cycleHigh, PeakBar: peakBar,
		TranslationPct: translationPct, Translation: translation,
		IsFailed: isFailed, IsInWindow: isInWindow, Status: status, Bias: bias,
	}
}

// findCycleLow scans backwards for the lowest low within at most expectedMax
// bars that is preceded by a higher low or a transition from a prior failed
// cycle (approximated here as: the lowest low in the lookback window whose
// predecessor bar's low is not itself lower, i.e. the window's true minimum).
func findCycleLow(series ohlcv.Series, expectedMax int) Low {
	n := len(series)
	start := n - expectedMax
	if start < 1 {
		start = 1
	}
	lowIdx := start
	lowVal := series[start].Low
	for i := start; i < n; i++ {
		if series[i].Low < lowVal {
			lowVal = series[i].Low
			lowIdx = i
		}
	}
	return Low{Price: lowVal, Bar: lowIdx, At: series[lowIdx].Timestamp}
}

func findHighSince(series ohlcv.Series, fromBar int) (float64, int) {
	high := series[fromBar].High
	peakBar := fromBar
	for i := fromBar; i < len(series); i++ {
		if series[i].High > high {
			high = series[i].High
			peakBar = i
		}
	}
	return high, peakBar
}

func classifyTranslation(pct float64) Translation {
	switch {
	case pct > 55:
		return RTR
	case pct < 45:
		return LTR
	default:
		return MTR
	}
}

func classifyStatus(isFailed bool, t Translation, barsSinceLow, expectedMin int) Status {
	switch {
	case isFailed:
		return StatusFailed
	case t == LTR:
		return StatusWarning
	case t == MTR && isNearFailureThreshold(barsSinceLow, expectedMin):
		return StatusCaution
	case t == RTR:
		return StatusHealthy
	case float64(barsSinceLow) < 0.2*float64(expectedMin):
		return StatusEarly
	default:
		return StatusUnknown
	}
}

// isNearFailureThreshold is a conservative proxy: MTR cycles past their
// expected minimum duration are considered to be approaching the point where
// a close below the cycle low would register as failure.
func isNearFailureThreshold(barsSinceLow, expectedMin int) bool {
	return barsSinceLow >= expectedMin
}

func classifyBias(isFailed bool, t Translation) Bias {
	switch {
	case isFailed:
		return Short
	case t == RTR:
		return Long
	case t == LTR:
		return Short
	default:
		return Neutral
	}
}

// Alignment is the aggregate DCL/WCL agreement classification.
type Alignment string

const (
	Aligned     Alignment = "ALIGNED"
	Conflicting Alignment = "CONFLICTING"
	Mixed       Alignment = "MIXED"
)

// Aggregate combines the daily and weekly cycle states into one bias.
type Aggregate struct {
	DCL       State
	WCL       State
	Alignment Alignment
	Bias      Bias
}

// Combine derives the aggregate alignment and bias from DCL and WCL states.
func Combine(dcl, wcl State) Aggregate {
	agg := Aggregate{DCL: dcl, WCL: wcl}
	switch {
	case dcl.Bias == wcl.Bias && dcl.Bias != Neutral:
		agg.Alignment = Aligned
		agg.Bias = dcl.Bias
	case dcl.Bias != Neutral && wcl.Bias != Neutral && dcl.Bias != wcl.Bias:
		agg.Alignment = Conflicting
		agg.Bias = Neutral
	default:
		agg.Alignment = Mixed
		agg.Bias = Neutral
	}
	return agg
}
