package scoring

import (
	"github.com/driftscan/confluence/internal/domain/cycle"
	"github.com/driftscan/confluence/internal/domain/smc"
	"github.com/driftscan/confluence/internal/domain/swing"
)

// FactorFunc is the duck-typed factor capability: present factors compute a
// real raw score; factors missing required inputs degrade gracefully to
// raw=50 with a neutral rationale rather than erroring.
type FactorFunc func(in Inputs) (raw float64, rationale string, degraded bool)

// FactorOrder is the stable declared evaluation order, required for
// deterministic traces.
var FactorOrder = []string{
	"htf_trend_alignment",
	"mtf_confluence",
	"structural_break",
	"order_block_quality",
	"fvg_quality",
	"liquidity_sweep",
	"swing_structure_clarity",
	"momentum",
	"volatility_regime",
	"volume_profile",
	"cycle_alignment",
	"macro_bias",
}

// Registry maps each canonical factor name to its function.
var Registry = map[string]FactorFunc{
	"htf_trend_alignment":    factorHTFTrendAlignment,
	"mtf_confluence":         factorMTFConfluence,
	"structural_break":       factorStructuralBreak,
	"order_block_quality":    factorOrderBlockQuality,
	"fvg_quality":            factorFVGQuality,
	"liquidity_sweep":        factorLiquiditySweep,
	"swing_structure_clarity": factorSwingClarity,
	"momentum":               factorMomentum,
	"volatility_regime":      factorVolatilityRegime,
	"volume_profile":         factorVolumeProfile,
	"cycle_alignment":        factorCycleAlignment,
	"macro_bias":             factorMacroBias,
}

func degrade() (float64, string, bool) { return 50, "neutral: missing inputs", true }

func directionIsBullish(d Direction) bool { return d == Long }

func trendAgrees(t swing.Trend, d Direction) bool {
	if directionIsBullish(d) {
		return t == swing.Bullish
	}
	return t == swing.Bearish
}

func factorHTFTrendAlignment(in Inputs) (float64, string, bool) {
	htf, ok := htfTrend(in.SwingByTF)
	if !ok {
		return degrade()
	}
	if htf == swing.Neutral {
		return 50, "HTF trend neutral", false
	}
	if trendAgrees(htf, in.Direction) {
		return 85, "HTF trend agrees with direction", false
	}
	return 15, "HTF trend opposes direction", false
}

// htfTrend determines the HTF trend from {4h,1d} swing structures: agree =
// that trend, disagree = neutral.
func htfTrend(byTF map[string]swing.Structure) (swing.Trend, bool) {
	h4, ok4 := byTF["4h"]
	d1, ok1 := byTF["1d"]
	switch {
	case ok4 && ok1:
		if h4.Trend == d1.Trend {
			return h4.Trend, true
		}
		return swing.Neutral, true
	case ok4:
		return h4.Trend, true
	case ok1:
		return d1.Trend, true
	default:
		return swing.Neutral, false
	}
}

func factorMTFConfluence(in Inputs) (float64, string, bool) {
	if len(in.SwingByTF) == 0 {
		return degrade()
	}
	agree, total := 0, 0
	for _, s := range in.SwingByTF {
		total++
		if trendAgrees(s.Trend, in.Direction) {
			agree++
		}
	}
	if total == 0 {
		return degrade()
	}
	raw := 100 * float64(agree) / float64(total)
	return raw, "fraction of timeframes agreeing with direction", false
}

func bestGrade(grades []smc.Grade) (float64, bool) {
	if len(grades) == 0 {
		return 0, false
	}
	best := smc.GradeC
	for _, g := range grades {
		if g == smc.GradeA {
			best = smc.GradeA
			break
		}
		if g == smc.GradeB {
			best = smc.GradeB
		}
	}
	switch best {
	case smc.GradeA:
		return 90, true
	case smc.GradeB:
		return 70, true
	default:
		return 50, true
	}
}

func directionalBias(bullish bool) bool { return bullish }

func factorStructuralBreak(in Inputs) (float64, string, bool) {
	var grades []smc.Grade
	for _, inv := range in.Patterns {
		for _, sb := range inv.StructuralBreaks {
			if sb.Bullish == directionIsBullish(in.Direction) {
				grades = append(grades, sb.Grade)
			}
		}
	}
	raw, ok := bestGrade(grades)
	if !ok {
		return degrade()
	}
	return raw, "best-graded BOS/CHoCH aligned with direction", false
}

func factorOrderBlockQuality(in Inputs) (float64, string, bool) {
	var grades []smc.Grade
	for _, inv := range in.Patterns {
		for _, ob := range inv.OrderBlocks {
			if !ob.Mitigated && ob.Bullish == directionIsBullish(in.Direction) {
				grades = append(grades, ob.Grade)
			}
		}
	}
	raw, ok := bestGrade(grades)
	if !ok {
		return degrade()
	}
	return raw, "best-graded unmitigated order block aligned with direction", false
}

func factorFVGQuality(in Inputs) (float64, string, bool) {
	var grades []smc.Grade
	for _, inv := range in.Patterns {
		for _, g := range inv.FVGs {
			if !g.Mitigated && g.Bullish == directionIsBullish(in.Direction) {
				grades = append(grades, g.Grade)
			}
		}
	}
	raw, ok := bestGrade(grades)
	if !ok {
		return degrade()
	}
	return raw, "best-graded unmitigated FVG aligned with direction", false
}

func factorLiquiditySweep(in Inputs) (float64, string, bool) {
	var grades []smc.Grade
	for _, inv := range in.Patterns {
		for _, sw := range inv.LiquiditySweeps {
			if sw.Bullish == directionIsBullish(in.Direction) {
				grades = append(grades, sw.Grade)
			}
		}
	}
	raw, ok := bestGrade(grades)
	if !ok {
		return degrade()
	}
	return raw, "best-graded liquidity sweep aligned with direction", false
}

func factorSwingClarity(in Inputs) (float64, string, bool) {
	s, ok := htfTrendStructure(in.SwingByTF)
	if !ok {
		return degrade()
	}
	if len(s.Points) == 0 {
		return degrade()
	}
	if trendAgrees(s.Trend, in.Direction) {
		return 75, "swing structure clearly agrees with direction", false
	}
	if s.Trend == swing.Neutral {
		return 50, "swing structure ambiguous", false
	}
	return 25, "swing structure opposes direction", false
}

func htfTrendStructure(byTF map[string]swing.Structure) (swing.Structure, bool) {
	if s, ok := byTF["4h"]; ok {
		return s, true
	}
	if s, ok := byTF["1d"]; ok {
		return s, true
	}
	return swing.Structure{}, false
}

func factorMomentum(in Inputs) (float64, string, bool) {
	var snap *momentumSnap
	for _, tf := range []string{"4h", "1h", "1d"} {
		if s, ok := in.Indicators[tf]; ok && s.HasRSI {
			snap = &momentumSnap{rsi: s.RSI, macd: s.MACDHistogram, hasMACD: s.HasMACD}
			break
		}
	}
	if snap == nil {
		return degrade()
	}
	bullish := directionIsBullish(in.Direction)
	rsiScore := 50.0
	if bullish {
		rsiScore = clamp(snap.rsi, 0, 100)
	} else {
		rsiScore = clamp(100-snap.rsi, 0, 100)
	}
	if !snap.hasMACD {
		return rsiScore, "RSI-only momentum read", false
	}
	macdAgrees := (snap.macd > 0) == bullish
	if macdAgrees {
		return clamp(rsiScore+10, 0, 100), "RSI and MACD agree with direction", false
	}
	return clamp(rsiScore-10, 0, 100), "RSI and MACD disagree", false
}

type momentumSnap struct {
	rsi     float64
	macd    float64
	hasMACD bool
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func factorVolatilityRegime(in Inputs) (float64, string, bool) {
	for _, tf := range []string{"4h", "1h", "1d"} {
		if s, ok := in.Indicators[tf]; ok {
			if s.TTMSqueezeOn && s.TTMSqueezeFiring {
				return 85, "squeeze firing: volatility expansion imminent", false
			}
			if s.TTMSqueezeOn {
				return 60, "squeeze on: compressed, not yet firing", false
			}
			return 50, "no squeeze state", false
		}
	}
	return degrade()
}

func factorVolumeProfile(in Inputs) (float64, string, bool) {
	if in.GlobalRegime.Liquidity.State == "" {
		return degrade()
	}
	switch in.GlobalRegime.Liquidity.State {
	case "heavy":
		return 75, "heavy liquidity supports execution", false
	case "healthy":
		return 65, "healthy liquidity", false
	default:
		return 40, "thin liquidity", false
	}
}

func factorCycleAlignment(in Inputs) (float64, string, bool) {
	if in.CycleAgg.Alignment == "" {
		return degrade()
	}
	bullish := directionIsBullish(in.Direction)
	biasBullish := in.CycleAgg.Bias == cycle.Long
	biasBearish := in.CycleAgg.Bias == cycle.Short
	switch {
	case in.CycleAgg.Bias == cycle.Neutral:
		return 50, "cycle bias neutral", false
	case bullish && biasBullish, !bullish && biasBearish:
		if in.CycleAgg.Alignment == cycle.Aligned {
			return 85, "DCL/WCL aligned with direction", false
		}
		return 65, "cycle bias agrees, mixed alignment", false
	default:
		return 20, "cycle bias opposes direction", false
	}
}

func factorMacroBias(in Inputs) (float64, string, bool) {
	if in.Macro.MacroBias == "" {
		return degrade()
	}
	bullish := directionIsBullish(in.Direction)
	switch in.Macro.MacroBias {
	case cycle.MacroBullish:
		if bullish {
			return 75, "macro 4YC phase bullish", false
		}
		return 35, "macro 4YC phase bullish, opposes short", false
	case cycle.MacroBearish:
		if !bullish {
			return 75, "macro 4YC phase bearish", false
		}
		return 35, "macro 4YC phase bearish, opposes long", false
	default:
		return 50, "macro 4YC phase neutral", false
	}
}
