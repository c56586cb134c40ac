// Package regime computes the five-dimension market regime (trend,
// volatility, liquidity, risk appetite, derivatives), a composite label, and
// enforces hysteresis so that a single noisy detection cannot flip a stable
// regime.
package regime

import (
	"math"
	"sync"
	"time"

	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/domain/swing"
)

// ModeProfile names one of the four pinned threshold profiles.
type ModeProfile string

const (
	MacroSurveillance  ModeProfile = "macro_surveillance"
	StealthBalanced    ModeProfile = "stealth_balanced"
	IntradayAggressive ModeProfile = "intraday_aggressive"
	Precision          ModeProfile = "precision"
)

// ModeThresholds are the per-profile trend thresholds that vary throughout the
// core wherever mode affects sensitivity.
type ModeThresholds struct {
	MinTrendADX          float64
	StrongTrendADX       float64
	StrongMomentumSlope  float64
}

// DefaultModeThresholds is the pinned regime-classification threshold table.
var DefaultModeThresholds = map[ModeProfile]ModeThresholds{
	MacroSurveillance:  {MinTrendADX: 25, StrongTrendADX: 35, StrongMomentumSlope: 3.0},
	StealthBalanced:    {MinTrendADX: 20, StrongTrendADX: 30, StrongMomentumSlope: 2.0},
	IntradayAggressive: {MinTrendADX: 15, StrongTrendADX: 25, StrongMomentumSlope: 1.5},
	Precision:          {MinTrendADX: 12, StrongTrendADX: 20, StrongMomentumSlope: 1.0},
}

// ValidateModeThresholds enforces min_trend_adx < strong_trend_adx for every mode profile.
func ValidateModeThresholds(table map[ModeProfile]ModeThresholds) error {
	for mode, t := range table {
		if !(t.MinTrendADX < t.StrongTrendADX) {
			return invalidConfig(mode)
		}
	}
	return nil
}

func invalidConfig(mode ModeProfile) error {
	return &configError{mode: mode}
}

type configError struct{ mode ModeProfile }

func (e *configError) Error() string {
	return "regime: mode profile " + string(e.mode) + " has min_trend_adx >= strong_trend_adx"
}

// TrendState, VolatilityState, LiquidityState, RiskAppetiteState,
// DerivativesState are the five dimension enums.
type TrendState string

const (
	StrongUp   TrendState = "strong_up"
	Up         TrendState = "up"
	Sideways   TrendState = "sideways"
	Down       TrendState = "down"
	StrongDown TrendState = "strong_down"
)

type VolatilityState string

const (
	Compressed VolatilityState = "compressed"
	NormalVol  VolatilityState = "normal"
	Elevated   VolatilityState = "elevated"
	Volatile   VolatilityState = "volatile"
	Chaotic    VolatilityState = "chaotic"
)

type LiquidityState string

const (
	Thin    LiquidityState = "thin"
	Healthy LiquidityState = "healthy"
	Heavy   LiquidityState = "heavy"
)

type RiskAppetiteState string

const (
	ExtremeRiskOff RiskAppetiteState = "extreme_risk_off"
	RiskOff        RiskAppetiteState = "risk_off"
	Cautious       RiskAppetiteState = "cautious"
	BTCFlight      RiskAppetiteState = "btc_flight"
	BTCDominant    RiskAppetiteState = "btc_dominant"
	Balanced       RiskAppetiteState = "balanced"
	RiskOn         RiskAppetiteState = "risk_on"
	AltSeason      RiskAppetiteState = "alt_season"
)

type DerivativesState string

// Derivatives is left a genuine placeholder: a single value, fixed score.
// No funding-rate/OI source is wired — that would require a new adapter,
// out of scope.
const DerivativesBalanced DerivativesState = "balanced"

// Dimension pairs an enum state with its 0-100 score.
type Dimension struct {
	State string
	Score float64
}

// Detection is one point-in-time global regime reading.
type Detection struct {
	Trend         Dimension
	Volatility    Dimension
	Liquidity     Dimension
	RiskAppetite  Dimension
	Derivatives   Dimension
	Composite     string
	CompositeScore float64
	DetectedAt    time.Time
}

// weightedScore combines the five dimension scores per the fixed weights
// (trend 0.30, vol 0.20, liq 0.20, risk 0.20, deriv 0.10).
func (d Detection) weightedScore() float64 {
	return d.Trend.Score*0.30 + d.Volatility.Score*0.20 + d.Liquidity.Score*0.20 +
		d.RiskAppetite.Score*0.20 + d.Derivatives.Score*0.10
}

// TrendInputs are the precomputed series needed for the trend dimension: one
// swing structure per candidate HTF preference, plus a 20-bar MA slope
// normalized by ATR%.
type TrendInputs struct {
	// SwingByTF holds the swing structure computed at the chosen lookback for
	// each timeframe present in the preference list [1w,1d,4h,1h,30m,15m].
	SwingByTF map[ohlcv.Timeframe]swing.Structure
	// ADX is the Average Directional Index on the chosen HTF.
	ADX float64
	// NormalizedSlope is the 20-bar MA slope normalized by ATR%.
	NormalizedSlope float64
}

var trendPreference = []ohlcv.Timeframe{
	ohlcv.TF1w, ohlcv.TF1d, ohlcv.TF4h, ohlcv.TF1h, ohlcv.TF30m, ohlcv.TF15m,
}

// classifyTrend picks the highest available preferred timeframe and applies
// the mode-threshold classification rule.
func classifyTrend(in TrendInputs, mode ModeThresholds) Dimension {
	var chosen swing.Structure
	found := false
	for _, tf := range trendPreference {
		if s, ok := in.SwingByTF[tf]; ok {
			chosen = s
			found = true
			break
		}
	}
	if !found {
		return Dimension{State: string(Sideways), Score: 50}
	}

	strongMomentum := in.ADX >= mode.StrongTrendADX
	switch chosen.Trend {
	case swing.Bullish:
		if strongMomentum && in.NormalizedSlope > mode.StrongMomentumSlope {
			return Dimension{State: string(StrongUp), Score: 90}
		}
		return Dimension{State: string(Up), Score: 70}
	case swing.Bearish:
		if strongMomentum && in.NormalizedSlope < -mode.StrongMomentumSlope {
			return Dimension{State: string(StrongDown), Score: 10}
		}
		return Dimension{State: string(Down), Score: 30}
	default:
		_ = in.ADX < mode.MinTrendADX // confirmation signal only; sideways either way
		return Dimension{State: string(Sideways), Score: 50}
	}
}

// classifyVolatility applies the ATR% thresholds, including the "expanding"
// refinement in the elevated bucket.
func classifyVolatility(atrPct float64, expanding bool) Dimension {
	switch {
	case atrPct < 0.8:
		return Dimension{State: string(Compressed), Score: 60}
	case atrPct < 1.5:
		return Dimension{State: string(NormalVol), Score: 75}
	case atrPct < 2.5:
		if expanding {
			return Dimension{State: string(Elevated), Score: 55}
		}
		return Dimension{State: string(Elevated), Score: 60}
	case atrPct < 4.0:
		return Dimension{State: string(Volatile), Score: 40}
	default:
		return Dimension{State: string(Chaotic), Score: 20}
	}
}

// ATRExpanding reports whether the most recent 5-bar average ATR exceeds the
// prior 5-bar average by more than 1.15x.
func ATRExpanding(atrSeries []float64) bool {
	n := len(atrSeries)
	if n < 10 {
		return false
	}
	recent := avg(atrSeries[n-5:])
	prior := avg(atrSeries[n-10 : n-5])
	if prior <= 0 {
		return false
	}
	return recent > prior*1.15
}

func avg(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// classifyLiquidity ratios last-5-bar mean volume to last-20-bar mean volume.
func classifyLiquidity(series ohlcv.Series) Dimension {
	n := len(series)
	if n < 20 {
		return Dimension{State: string(Healthy), Score: 75}
	}
	last5 := avgVolume(series[n-5:])
	last20 := avgVolume(series[n-20:])
	if last20 <= 0 {
		return Dimension{State: string(Healthy), Score: 75}
	}
	ratio := last5 / last20
	switch {
	case ratio < 0.5:
		return Dimension{State: string(Thin), Score: 40}
	case ratio < 1.5:
		return Dimension{State: string(Healthy), Score: 75}
	default:
		return Dimension{State: string(Heavy), Score: 65}
	}
}

func avgVolume(s ohlcv.Series) float64 {
	var sum float64
	for _, b := range s {
		sum += b.Volume
	}
	return sum / float64(len(s))
}

// DominanceReading is the BTC/stablecoin dominance input to risk appetite.
// A failed source (Valid=false) degrades to balanced(50).
type DominanceReading struct {
	Valid     bool
	BTCDom    float64
	StableDom float64
}

// classifyRiskAppetite applies the first-match-wins decision table.
func classifyRiskAppetite(d DominanceReading) Dimension {
	if !d.Valid {
		return Dimension{State: string(Balanced), Score: 50}
	}
	switch {
	case d.StableDom > 12:
		return Dimension{State: string(ExtremeRiskOff), Score: 15}
	case d.StableDom > 9:
		return Dimension{State: string(RiskOff), Score: 30}
	case d.StableDom > 7.5:
		return Dimension{State: string(Cautious), Score: 45}
	case d.BTCDom > 60:
		return Dimension{State: string(BTCFlight), Score: 40}
	case d.BTCDom > 55:
		return Dimension{State: string(BTCDominant), Score: 50}
	case d.BTCDom < 48:
		return Dimension{State: string(AltSeason), Score: 85}
	case d.BTCDom < 52:
		return Dimension{State: string(RiskOn), Score: 75}
	case d.StableDom < 5:
		return Dimension{State: string(RiskOn), Score: 80}
	default:
		return Dimension{State: string(Balanced), Score: 60}
	}
}

// compositeLabel derives the final composite label from the five dimensions.
func compositeLabel(trend, vol, liq, risk Dimension) string {
	isBullish := trend.State == string(StrongUp) || trend.State == string(Up)
	isBearish := trend.State == string(StrongDown) || trend.State == string(Down)
	isSideways := trend.State == string(Sideways)

	switch {
	case isSideways && (risk.State == string(RiskOff) || risk.State == string(ExtremeRiskOff)):
		return "choppy_risk_off"
	case isBullish && (risk.State == string(RiskOn) || risk.State == string(AltSeason)):
		return "bullish_risk_on"
	case isBearish && (risk.State == string(RiskOff) || risk.State == string(ExtremeRiskOff)):
		return "bearish_risk_off"
	case vol.State == string(Chaotic):
		return "chaotic_volatile"
	case isSideways && vol.State == string(Compressed):
		return "range_coiling"
	default:
		return trend.State + "_" + vol.State
	}
}

// DetectGlobal computes the full five-dimension global regime for one point
// in time. Callers are responsible for TTL caching (300s) at the call site.
func DetectGlobal(trendIn TrendInputs, atrPct float64, atrExpanding bool, liquiditySeries ohlcv.Series,
	dom DominanceReading, mode ModeThresholds) Detection {

	trend := classifyTrend(trendIn, mode)
	vol := classifyVolatility(atrPct, atrExpanding)
	liq := classifyLiquidity(liquiditySeries)
	risk := classifyRiskAppetite(dom)
	deriv := Dimension{State: string(DerivativesBalanced), Score: 60}

	d := Detection{
		Trend: trend, Volatility: vol, Liquidity: liq, RiskAppetite: risk, Derivatives: deriv,
		DetectedAt: time.Now(),
	}
	d.Composite = compositeLabel(trend, vol, liq, risk)
	d.CompositeScore = d.weightedScore()
	return d
}

// HysteresisWindow is N, the number of consecutive confirmations required to
// leave a stable regime.
const HysteresisWindow = 3

// MaxHistory bounds the retained detection history.
const MaxHistory = 20

// History tracks the bounded, append-ordered sequence of accepted/raw
// detections and applies the anti-flip-flop rule. Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	entries  []Detection // raw candidate detections, most recent last
	reported Detection   // the detection most recently returned by Apply
}

// NewHistory builds an empty history.
func NewHistory() *History { return &History{} }

// Apply runs the hysteresis rule against a new raw detection and returns the
// composite that should actually be reported (new or the held-over prior
// one), appending to history either way.
func (h *History) Apply(candidate Detection) Detection {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 {
		h.entries = append(h.entries, candidate)
		h.reported = candidate
		return candidate
	}

	last := h.reported
	result := candidate

	if candidate.Composite == last.Composite {
		result = candidate
	} else if len(h.entries) < HysteresisWindow {
		result = candidate
	} else {
		// The new composite replaces the reported one only once the last N
		// raw detections, this one included, all agree on it.
		tail := h.entries[len(h.entries)-(HysteresisWindow-1):]
		confirmed := true
		for _, e := range tail {
			if e.Composite != candidate.Composite {
				confirmed = false
				break
			}
		}
		if !confirmed {
			result = last
			result.DetectedAt = candidate.DetectedAt
		}
	}

	h.entries = append(h.entries, candidate)
	if len(h.entries) > MaxHistory {
		h.entries = h.entries[len(h.entries)-MaxHistory:]
	}
	h.reported = result
	return result
}

// Snapshot returns a copy of the retained history for read-only inspection.
func (h *History) Snapshot() []Detection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Detection, len(h.entries))
	copy(out, h.entries)
	return out
}

// PerSymbolOverride applies the cycle-aware override: a down/strong_down
// trend inside a DCL/WCL accumulation zone is overridden to sideways with a
// +10 score bonus, and symmetrically for up/strong_up at distribution/LTR.
func PerSymbolOverride(d Detection, inAccumulationZone, inDistributionZone bool) Detection {
	out := d
	switch {
	case (d.Trend.State == string(Down) || d.Trend.State == string(StrongDown)) && inAccumulationZone:
		out.Trend = Dimension{State: string(Sideways), Score: math.Min(100, d.Trend.Score+10)}
	case (d.Trend.State == string(Up) || d.Trend.State == string(StrongUp)) && inDistributionZone:
		out.Trend = Dimension{State: string(Sideways), Score: math.Min(100, d.Trend.Score+10)}
	}
	out.CompositeScore = out.weightedScore()
	return out
}
