// Package pipeline implements the staged per-symbol scan: ingest →
// indicators/SMC → swing + regime lookup → scorer → threshold check → risk
// gate → cooldown gate → emit signal or reject.
package pipeline

import (
	"context"
	"time"

	"github.com/driftscan/confluence/internal/adapter"
	"github.com/driftscan/confluence/internal/cache"
	"github.com/driftscan/confluence/internal/cooldown"
	"github.com/driftscan/confluence/internal/domain/cycle"
	"github.com/driftscan/confluence/internal/domain/indicator"
	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/domain/regime"
	"github.com/driftscan/confluence/internal/domain/scoring"
	"github.com/driftscan/confluence/internal/domain/smc"
	"github.com/driftscan/confluence/internal/domain/swing"
	"github.com/driftscan/confluence/internal/errs"
	"github.com/driftscan/confluence/internal/ingest"
	"github.com/driftscan/confluence/internal/risk"
	"github.com/driftscan/confluence/internal/sizing"
	"github.com/driftscan/confluence/internal/telemetry"
)

// defaultATRMultiplier sets the stop distance used by the built-in
// ATR-based sizer when a caller supplies no PositionValue hook.
const defaultATRMultiplier = 2.0

// defaultRiskPct is the fixed-fractional risk percentage the built-in sizer
// targets when no hook overrides it.
const defaultRiskPct = 1.0

// Timeframes drives which timeframes are ingested and built into swing
// structures for the scorer.
var Timeframes = []ohlcv.Timeframe{ohlcv.TF1h, ohlcv.TF4h, ohlcv.TF1d}

// Deps bundles every shared, thread-safe collaborator a worker needs to
// drive one symbol through all stages. Every field is read-mostly or
// internally locked, so a Deps value is safe to share across pool workers.
type Deps struct {
	Exchange      adapter.Exchange
	Cache         *cache.Manager
	Indicators    indicator.Source
	Patterns      smc.Detector
	Risk          *risk.Manager
	Cooldowns     *cooldown.Store
	Telemetry     *telemetry.Sink
	Weights       map[string]float64
	SynergyRules  []scoring.SynergyRule
	MinConfluence float64
	GlobalRegime  regime.Detection // computed once per scan, shared read-only
	Macro         cycle.MacroContext
	PositionValue func(scoring.Trace) float64 // sizing hook; nil uses defaultPositionSizing
}

// Outcome is the result of running one symbol through the pipeline: either a
// Trace for an emitted signal, or a rejection with stage/reason.
type Outcome struct {
	Symbol      string
	Signal      *scoring.Trace
	RejectStage string
	RejectKind  errs.Kind
	Reason      string
}

// RunSymbol drives symbol fully through every stage. No stage is
// sub-parallelized — the granularity of parallelism is "one symbol = one
// task", enforced by the caller (the worker pool).
func RunSymbol(ctx context.Context, runID, symbol string, direction scoring.Direction, deps Deps) Outcome {
	deps.Telemetry.Emit(runID, telemetry.SymbolStarted, map[string]any{"symbol": symbol})

	if err := ctx.Err(); err != nil {
		return reject(deps, runID, symbol, "cancelled", errs.Wrap(errs.Cancelled, "scan cancelled", err))
	}

	reqs := make([]ingest.Requirement, 0, len(Timeframes)+1)
	for _, tf := range Timeframes {
		reqs = append(reqs, ingest.Requirement{Timeframe: tf, MinBars: minBarsFor(tf)})
	}
	reqs = append(reqs, ingest.Requirement{Timeframe: ohlcv.TF1w, MinBars: cycle.WeeklyWindow[0]})

	bundle, err := ingest.Assemble(ctx, deps.Exchange, deps.Cache, symbol, reqs)
	if err != nil {
		return reject(deps, runID, symbol, "ingest", err)
	}

	swingByTF := make(map[string]swing.Structure, len(bundle.Series))
	for tf, series := range bundle.Series {
		swingByTF[string(tf)] = swing.Compute(series, swing.DefaultLookback, swing.MinSwingATR)
	}

	indicatorSet, err := deps.Indicators.Compute(symbol, tfStrings())
	if err != nil {
		return reject(deps, runID, symbol, "indicators", errs.Wrap(errs.DataUnavailable, "indicator compute failed", err))
	}

	patterns := make(map[string]smc.Inventory, len(Timeframes))
	for _, tf := range Timeframes {
		patterns[string(tf)] = gatherPatterns(deps.Patterns, symbol, string(tf))
	}

	cycleAgg := cycleAggregate(deps.Cache, symbol, bundle)
	symbolRegime := symbolRegimeFor(deps.Cache, symbol, deps.GlobalRegime, cycleAgg)

	inputs := scoring.Inputs{
		Symbol: symbol, Direction: direction, Indicators: indicatorSet.ByTF, Patterns: patterns,
		SwingByTF: swingByTF, GlobalRegime: deps.GlobalRegime, SymbolRegime: symbolRegime,
		CycleAgg: cycleAgg, Macro: deps.Macro,
	}

	trace := scoring.Score(inputs, deps.Weights, deps.SynergyRules)

	if trace.Verdict == scoring.Blocked {
		return reject(deps, runID, symbol, "scorer", errs.New(errs.ScorerBlocked, trace.Reason))
	}
	if trace.FinalScore < deps.MinConfluence {
		return reject(deps, runID, symbol, "threshold", errs.New(errs.ScorerBlocked, "below min_confluence_score"))
	}

	positionValue, riskAmount := defaultPositionSizing(deps, symbol, bundle, indicatorSet)
	if deps.PositionValue != nil {
		positionValue = deps.PositionValue(trace)
		riskAmount = positionValue * defaultRiskPct / 100
	}
	riskCheck := deps.Risk.ValidateNewTrade(symbol, string(direction), positionValue, riskAmount)
	if !riskCheck.Passed {
		return reject(deps, runID, symbol, "risk", errs.New(errs.RiskRejected, riskCheck.Reason))
	}

	if entry, active := deps.Cooldowns.IsActive(symbol, string(direction)); active {
		return reject(deps, runID, symbol, "cooldown",
			errs.New(errs.CooldownActive, "cooldown active until "+entry.ExpiresAt.Format(time.RFC3339)))
	}

	deps.Telemetry.Emit(runID, telemetry.SignalGenerated, telemetry.TracePayload(trace))
	return Outcome{Symbol: symbol, Signal: &trace}
}

func reject(deps Deps, runID, symbol, stage string, err error) Outcome {
	kind := errs.KindOf(err)
	deps.Telemetry.Emit(runID, telemetry.SignalRejected, map[string]any{
		"symbol": symbol, "stage": stage, "reason": string(kind), "detail": err.Error(),
	})
	return Outcome{Symbol: symbol, RejectStage: stage, RejectKind: kind, Reason: err.Error()}
}

func minBarsFor(tf ohlcv.Timeframe) int {
	if tf == ohlcv.TF4h || tf == ohlcv.TF1d {
		return 50
	}
	return 20
}

func tfStrings() []string {
	out := make([]string, len(Timeframes))
	for i, tf := range Timeframes {
		out[i] = string(tf)
	}
	return out
}

func gatherPatterns(det smc.Detector, symbol, tf string) smc.Inventory {
	inv := smc.Inventory{}
	if ob, err := det.DetectOrderBlocks(symbol, tf); err == nil {
		inv.OrderBlocks = ob
	}
	if fvg, err := det.DetectFVGs(symbol, tf); err == nil {
		inv.FVGs = fvg
	}
	if sweeps, err := det.DetectLiquiditySweeps(symbol, tf); err == nil {
		inv.LiquiditySweeps = sweeps
	}
	if breaks, err := det.DetectBOSCHoCH(symbol, tf); err == nil {
		inv.StructuralBreaks = breaks
	}
	return inv
}

// cycleAggregate runs the real DCL/WCL cycle detector against the symbol's
// daily and weekly series (cycle.Detect degrades to an Unknown/Neutral State
// on its own when a series is missing or too short), cached per symbol at
// the cycles namespace's 300s default TTL.
func cycleAggregate(cacheMgr *cache.Manager, symbol string, bundle *ohlcv.Bundle) cycle.Aggregate {
	key := symbol + ":cycle"
	if v, ok := cacheMgr.GetCycle(key); ok {
		if agg, ok := v.(cycle.Aggregate); ok {
			return agg
		}
	}

	dcl := cycle.Detect(bundle.Series[ohlcv.TF1d], cycle.DailyWindow[0], cycle.DailyWindow[1])
	wcl := cycle.Detect(bundle.Series[ohlcv.TF1w], cycle.WeeklyWindow[0], cycle.WeeklyWindow[1])
	agg := cycle.Combine(dcl, wcl)

	cacheMgr.SetCycle(key, agg)
	return agg
}

// symbolRegimeFor applies the cycle-aware per-symbol override to the global
// regime (a DCL/WCL-aligned bullish bias is treated as an accumulation zone,
// a bearish bias as a distribution zone, per regime.PerSymbolOverride's
// contract), cached per symbol at the regime namespace's 60s default TTL.
func symbolRegimeFor(cacheMgr *cache.Manager, symbol string, global regime.Detection, cycleAgg cycle.Aggregate) regime.Detection {
	key := symbol + ":regime"
	if v, ok := cacheMgr.GetRegime(key); ok {
		if d, ok := v.(regime.Detection); ok {
			return d
		}
	}

	inAccumulationZone := cycleAgg.Bias == cycle.Long
	inDistributionZone := cycleAgg.Bias == cycle.Short
	symbolRegime := regime.PerSymbolOverride(global, inAccumulationZone, inDistributionZone)

	cacheMgr.SetRegime(key, symbolRegime)
	return symbolRegime
}

// defaultPositionSizing sizes the candidate off the 1h ATR with a fixed
// risk percentage of the manager's current balance, falling back to a flat
// notional when the 1h series or its ATR is unavailable (too few bars,
// degraded indicator pass). Returns (positionValue, riskAmount) for the
// risk gate.
func defaultPositionSizing(deps Deps, symbol string, bundle *ohlcv.Bundle, indicatorSet indicator.Set) (float64, float64) {
	const flatNotional = 1000.0

	series, ok := bundle.Series[ohlcv.TF1h]
	snap, hasSnap := indicatorSet.ByTF[string(ohlcv.TF1h)]
	if !ok || len(series) == 0 || !hasSnap || snap.ATR <= 0 {
		return flatNotional, flatNotional * defaultRiskPct / 100
	}

	balance := deps.Risk.GetSummary().AccountBalance
	entry := series[len(series)-1].Close
	res, err := sizing.ATRBased(balance, snap.ATR, defaultATRMultiplier, entry, defaultRiskPct)
	if err != nil || res.Notional <= 0 {
		return flatNotional, flatNotional * defaultRiskPct / 100
	}
	return res.Notional, res.RiskAmount
}
