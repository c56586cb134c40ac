package scoring

import (
	"sort"
	"time"
)

// SynergyRule is one confluence-family predicate: when every named factor's
// raw score meets its threshold simultaneously, Bonus is added toward the
// (clamped) synergy total.
type SynergyRule struct {
	Factors   []string
	Threshold float64
	Bonus     float64
}

// MaxSynergy is the mandatory cap; the legacy system's observed ~18pt average
// synergy produced pathological clustering and is not reproduced.
const MaxSynergy = 15.0

// DefaultSynergyRules is the canonical synergy rule family.
var DefaultSynergyRules = []SynergyRule{
	{Factors: []string{"structural_break", "order_block_quality", "htf_trend_alignment"}, Threshold: 70, Bonus: 15},
}

func synergyBonus(factors map[string]Factor, rules []SynergyRule) float64 {
	var total float64
	for _, rule := range rules {
		allMet := true
		for _, name := range rule.Factors {
			f, ok := factors[name]
			if !ok || f.RawScore < rule.Threshold {
				allMet = false
				break
			}
		}
		if allMet {
			total += rule.Bonus
		}
	}
	if total > MaxSynergy {
		total = MaxSynergy
	}
	return total
}

// conflictPenalty deducts points for opposing signals. Not clamped here; the
// caller clamps the final score to [0,100].
func conflictPenalty(in Inputs, htfAdjustment float64) float64 {
	var penalty float64

	// HTF adjustment is folded in by the caller directly into the
	// synergy/penalty line (see Score), so this function covers the
	// remaining canonical rules.
	if in.GlobalRegime.Volatility.State == "chaotic" {
		penalty += 10
	}

	bullish := directionIsBullish(in.Direction)
	if in.CycleAgg.Alignment == "ALIGNED" {
		opposes := (bullish && in.CycleAgg.Bias == "SHORT") || (!bullish && in.CycleAgg.Bias == "LONG")
		if opposes {
			penalty += 15
		}
	}

	symbolTrendBullish := in.SymbolRegime.Trend.State == "strong_up" || in.SymbolRegime.Trend.State == "up"
	symbolTrendBearish := in.SymbolRegime.Trend.State == "strong_down" || in.SymbolRegime.Trend.State == "down"
	globalTrendBullish := in.GlobalRegime.Trend.State == "strong_up" || in.GlobalRegime.Trend.State == "up"
	globalTrendBearish := in.GlobalRegime.Trend.State == "strong_down" || in.GlobalRegime.Trend.State == "down"
	if (symbolTrendBullish && globalTrendBearish) || (symbolTrendBearish && globalTrendBullish) {
		penalty += 5
	}

	return penalty
}

// macroComponent is the small additive term from the 4-year cycle's
// macro_bias matching direction, bounded to [-5,+5].
func macroComponent(in Inputs) float64 {
	bullish := directionIsBullish(in.Direction)
	switch in.Macro.MacroBias {
	case "BULLISH":
		if bullish {
			return 5
		}
		return -5
	case "BEARISH":
		if !bullish {
			return 5
		}
		return -5
	default:
		return 0
	}
}

// HTFGateResult is the output of resolve_timeframe_conflicts.
type HTFGateResult struct {
	Verdict        Verdict
	ScoreAdjustment float64
	Rationale      string
}

// ResolveTimeframeConflicts implements the strict HTF alignment gate.
func ResolveTimeframeConflicts(in Inputs) HTFGateResult {
	htf, ok := htfTrend(in.SwingByTF)
	if !ok || htf == "neutral" {
		return HTFGateResult{Verdict: Allowed, ScoreAdjustment: 0, Rationale: "HTF trend neutral or unavailable"}
	}

	agrees := trendAgrees(htf, in.Direction)
	if agrees {
		return HTFGateResult{Verdict: Allowed, ScoreAdjustment: 15, Rationale: "HTF trend aligned with direction"}
	}

	if in.HTFProximity.Valid && in.HTFProximity.ProximityATR < 0.5 {
		return HTFGateResult{Verdict: Caution, ScoreAdjustment: -30, Rationale: "counter-trend but at HTF structure, reversal plausible"}
	}
	return HTFGateResult{Verdict: Blocked, ScoreAdjustment: -40, Rationale: "HTF counter-trend"}
}

// Score runs the full factor evaluation, aggregation, synergy/penalty/macro
// combination, and the HTF alignment gate, producing a deterministic Trace.
func Score(in Inputs, weights map[string]float64, synergyRules []SynergyRule) Trace {
	factorsByName := make(map[string]Factor, len(FactorOrder))
	factors := make([]Factor, 0, len(FactorOrder))
	var weightedBase float64

	for _, name := range FactorOrder {
		fn, ok := Registry[name]
		if !ok {
			continue
		}
		raw, rationale, degraded := fn(in)
		w := weights[name]
		contribution := raw * w
		f := Factor{Name: name, RawScore: raw, Weight: w, Contribution: contribution, Rationale: rationale, Degraded: degraded}
		factors = append(factors, f)
		factorsByName[name] = f
		weightedBase += contribution
	}

	gate := ResolveTimeframeConflicts(in)
	if gate.Verdict == Blocked {
		return Trace{
			Symbol: in.Symbol, Direction: in.Direction, Factors: factors,
			Components: Components{WeightedBase: weightedBase},
			FinalScore: 0, Verdict: Blocked, Reason: gate.Rationale, Timestamp: time.Now(),
		}
	}

	synergy := synergyBonus(factorsByName, synergyRules) + gate.ScoreAdjustment
	penalty := conflictPenalty(in, gate.ScoreAdjustment)
	macro := macroComponent(in)

	final := weightedBase + synergy - penalty + macro
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	verdict := gate.Verdict
	reason := gate.Rationale

	return Trace{
		Symbol: in.Symbol, Direction: in.Direction, Factors: factors,
		Components: Components{WeightedBase: weightedBase, Synergy: synergy, Penalty: penalty, Macro: macro},
		FinalScore: final, Verdict: verdict, Reason: reason, Timestamp: time.Now(),
	}
}

// Ranked is one ranked scoring result.
type Ranked struct {
	Trace Trace
	Rank  int
}

// RankAndBreakTies orders traces by descending final score, breaking ties on
// (1) higher htf_trend_alignment raw, (2) lower volatility score, (3)
// alphabetical symbol.
func RankAndBreakTies(traces []Trace, volatilityScoreOf map[string]float64) []Ranked {
	sorted := append([]Trace(nil), traces...)
	htfRaw := func(t Trace) float64 {
		for _, f := range t.Factors {
			if f.Name == "htf_trend_alignment" {
				return f.RawScore
			}
		}
		return 0
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if ha, hb := htfRaw(a), htfRaw(b); ha != hb {
			return ha > hb
		}
		va, vb := volatilityScoreOf[a.Symbol], volatilityScoreOf[b.Symbol]
		if va != vb {
			return va < vb
		}
		return a.Symbol < b.Symbol
	})

	out := make([]Ranked, len(sorted))
	for i, t := range sorted {
		out[i] = Ranked{Trace: t, Rank: i + 1}
	}
	return out
}
