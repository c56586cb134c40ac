// Package indicator defines the uniform indicator-facade contract consumed by
// the scorer and regime detector. Any Source implementation may back it; the
// only one this module ships (BuiltinSource, in builtin.go) computes ATR,
// RSI, MACD, Bollinger/Keltner, and TTM squeeze with closed-form formulas
// since no third-party TA library appears anywhere in the example corpus.
package indicator

import "time"

// Snapshot is the set of scalar readings for the latest bar of one timeframe.
// A field the source could not compute must be left at its zero value with
// the corresponding Has* flag false — it must never be silently treated as
// zero by a consumer.
type Snapshot struct {
	Timeframe string
	AsOf      time.Time

	ATR       float64
	ATRSeries []float64 // last N ATR readings, most recent last

	BBUpper, BBMiddle, BBLower float64
	KCUpper, KCLower           float64
	TTMSqueezeOn               bool
	TTMSqueezeFiring           bool

	HasRSI  bool
	RSI     float64
	HasMACD bool
	MACDHistogram float64
}

// Set is the per-symbol, per-scan-pass collection of snapshots keyed by
// timeframe. Computed once per symbol per scan, consumed by scorer and regime
// detector, discarded on scan completion.
type Set struct {
	Symbol    string
	ByTF      map[string]Snapshot
}

// Get returns the snapshot for a timeframe and whether it is present.
func (s Set) Get(tf string) (Snapshot, bool) {
	v, ok := s.ByTF[tf]
	return v, ok
}

// Source is the external indicator primitive contract: compute(MTF bundle) →
// IndicatorSet. BuiltinSource is the implementation this module ships.
type Source interface {
	Compute(symbol string, timeframes []string) (Set, error)
}
