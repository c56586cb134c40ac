package cycle

import "time"

// MacroPhase is one quarter of the projected four-year cycle.
type MacroPhase string

const (
	Accumulation MacroPhase = "accumulation"
	Markup       MacroPhase = "markup"
	Distribution MacroPhase = "distribution"
	Markdown     MacroPhase = "markdown"
)

// MacroBias is the directional lean implied by the macro cycle phase.
type MacroBias string

const (
	MacroBullish MacroBias = "BULLISH"
	MacroNeutral MacroBias = "NEUTRAL"
	MacroBearish MacroBias = "BEARISH"
)

// MacroConfig carries the known historical four-year-cycle lows and the
// projected next low, date-driven rather than price-driven.
type MacroConfig struct {
	HistoricalLows []time.Time
	ProjectedNext  time.Time
	CycleLengthDays int
}

// MacroContext is the computed macro overlay, a read-only input to the
// scorer's macro component. It does not hysteresis.
type MacroContext struct {
	DaysSinceLow     int
	CyclePositionPct float64
	Phase            MacroPhase
	MacroBias        MacroBias
	OpportunityZone  bool
	DangerZone       bool
}

// DefaultMacroConfig carries Bitcoin's well-known four-year-cycle lows
// (2015-01-14, 2018-12-15, 2022-11-21) and the next projected low four years
// out from the last one, the one concrete macro calendar this module ships.
var DefaultMacroConfig = MacroConfig{
	HistoricalLows: []time.Time{
		time.Date(2015, 1, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2018, 12, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 11, 21, 0, 0, 0, 0, time.UTC),
	},
	ProjectedNext:   time.Date(2026, 11, 21, 0, 0, 0, 0, time.UTC),
	CycleLengthDays: 4 * 365,
}

// ComputeMacro derives the macro context for the given "as of" time against
// the most recent historical low (or the projected next low if it is already
// the most recent reference point behind asOf).
func ComputeMacro(cfg MacroConfig, asOf time.Time) MacroContext {
	anchor := mostRecentLow(cfg, asOf)
	daysSince := int(asOf.Sub(anchor).Hours() / 24)
	if daysSince < 0 {
		daysSince = 0
	}
	length := cfg.CycleLengthDays
	if length <= 0 {
		length = 4 * 365
	}
	pct := 100 * float64(daysSince) / float64(length)
	if pct > 100 {
		pct = 100
	}

	phase := phaseForPct(pct)
	bias := biasForPhase(phase)

	return MacroContext{
		DaysSinceLow:     daysSince,
		CyclePositionPct: pct,
		Phase:            phase,
		MacroBias:        bias,
		OpportunityZone:  phase == Accumulation || (phase == Markup && pct < 37.5),
		DangerZone:       phase == Markdown || (phase == Distribution && pct > 62.5),
	}
}

func mostRecentLow(cfg MacroConfig, asOf time.Time) time.Time {
	best := cfg.ProjectedNext
	for _, t := range cfg.HistoricalLows {
		if t.Before(asOf) || t.Equal(asOf) {
			if best.IsZero() || (t.After(best) && t.Before(asOf)) || best.After(asOf) {
				best = t
			}
		}
	}
	if best.After(asOf) && len(cfg.HistoricalLows) > 0 {
		best = cfg.HistoricalLows[len(cfg.HistoricalLows)-1]
	}
	return best
}

func phaseForPct(pct float64) MacroPhase {
	switch {
	case pct < 25:
		return Accumulation
	case pct < 50:
		return Markup
	case pct < 75:
		return Distribution
	default:
		return Markdown
	}
}

func biasForPhase(p MacroPhase) MacroBias {
	switch p {
	case Accumulation, Markup:
		return MacroBullish
	case Distribution:
		return MacroNeutral
	default:
		return MacroBearish
	}
}
