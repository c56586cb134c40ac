package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftscan/confluence/internal/adapter/krakenadapter"
	"github.com/driftscan/confluence/internal/domain/cycle"
	"github.com/driftscan/confluence/internal/domain/indicator"
	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/domain/regime"
	"github.com/driftscan/confluence/internal/domain/scoring"
	"github.com/driftscan/confluence/internal/domain/swing"
	"github.com/driftscan/confluence/internal/ingest"
	"github.com/driftscan/confluence/internal/scanjob"
)

func newScanCmd() *cobra.Command {
	var symbolsFlag string
	var topN int
	var modeFlag string
	var direction string
	var workers int
	var minConfluence float64
	var wait bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a confluence scan over a symbol universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := newAppState()
			if err != nil {
				return err
			}

			ex := krakenadapter.New()
			ctx := context.Background()

			symbols, err := resolveSymbols(ctx, ex, symbolsFlag, topN)
			if err != nil {
				return err
			}

			mode := scoring.ModeProfile(modeFlag)
			if minConfluence <= 0 {
				if v, ok := state.weights.MinConfluence[string(mode)]; ok {
					minConfluence = v
				} else {
					minConfluence = state.weights.MinConfluence["default"]
				}
			}

			deps := state.buildPipelineDeps(mode, minConfluence)
			deps.GlobalRegime = detectGlobalRegime(ctx, ex, state, mode)
			deps.Macro = cycle.ComputeMacro(cycle.DefaultMacroConfig, time.Now())

			mgr := scanjob.NewManager(workers)
			runID := mgr.CreateScan(ctx, symbols, scoring.Direction(direction), deps)
			fmt.Println(runID)

			if !wait {
				return nil
			}
			return pollUntilDone(mgr, runID)
		},
	}

	cmd.Flags().StringVar(&symbolsFlag, "symbols", "", "Comma-separated symbol list (e.g. BTC-USD,ETH-USD)")
	cmd.Flags().IntVar(&topN, "top", 8, "Number of top symbols to scan when --symbols is unset")
	cmd.Flags().StringVar(&modeFlag, "mode", string(scoring.StealthBalanced), "Scoring mode profile")
	cmd.Flags().StringVar(&direction, "direction", string(scoring.Long), "Candidate direction (long|short)")
	cmd.Flags().IntVar(&workers, "workers", scanjob.DefaultWorkers, "Worker pool size")
	cmd.Flags().Float64Var(&minConfluence, "min-confluence", 0, "Minimum confluence score (0 = use mode default)")
	cmd.Flags().BoolVar(&wait, "wait", true, "Block until the scan completes, printing a summary")
	return cmd
}

func resolveSymbols(ctx context.Context, ex *krakenadapter.Adapter, symbolsFlag string, topN int) ([]string, error) {
	if symbolsFlag != "" {
		parts := strings.Split(symbolsFlag, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return ex.ListTopSymbols(ctx, topN, "USD")
}

// globalRegimeCacheKey is shared across every scan: the global regime is one
// composite reading for the whole market, not one per symbol.
const globalRegimeCacheKey = "global"

// detectGlobalRegime computes one composite regime reading off BTC-USD,
// applying the mode's thresholds and the process-lifetime hysteresis
// history, cached for 300s so back-to-back scans within that window reuse
// the same reading instead of recomputing. A failed fetch degrades to a
// reading with composite "unknown" and score 50 rather than aborting the scan.
func detectGlobalRegime(ctx context.Context, ex *krakenadapter.Adapter, state *appState, mode scoring.ModeProfile) regime.Detection {
	if v, ok := state.cache.GetGlobalRegime(globalRegimeCacheKey); ok {
		if d, ok := v.(regime.Detection); ok {
			return d
		}
	}

	result := computeGlobalRegime(ctx, ex, state, mode)
	state.cache.SetGlobalRegime(globalRegimeCacheKey, result)
	return result
}

func computeGlobalRegime(ctx context.Context, ex *krakenadapter.Adapter, state *appState, mode scoring.ModeProfile) regime.Detection {
	const reference = "BTC-USD"
	reqs := []ingest.Requirement{
		{Timeframe: ohlcv.TF1d, MinBars: 60},
		{Timeframe: ohlcv.TF4h, MinBars: 60},
	}
	bundle, err := ingest.Assemble(ctx, ex, state.cache, reference, reqs)
	if err != nil {
		return regime.Detection{Composite: "unknown", CompositeScore: 50, DetectedAt: time.Now()}
	}

	src := indicator.NewBuiltinSource(ex, state.cache)
	set, _ := src.Compute(reference, []string{string(ohlcv.TF1d)})
	snap := set.ByTF[string(ohlcv.TF1d)]

	daily := bundle.Series[ohlcv.TF1d]
	thresholds := regime.DefaultModeThresholds[regime.ModeProfile(mode)]
	trendIn := regime.TrendInputs{SwingByTF: buildSwingByTF(bundle)}

	atrPct := 0.0
	if len(daily) > 0 && daily[len(daily)-1].Close > 0 {
		atrPct = snap.ATR / daily[len(daily)-1].Close * 100
	}
	expanding := regime.ATRExpanding(snap.ATRSeries)

	raw := regime.DetectGlobal(trendIn, atrPct, expanding, daily, regime.DominanceReading{}, thresholds)
	return state.regimeHist.Apply(raw)
}

func buildSwingByTF(bundle *ohlcv.Bundle) map[ohlcv.Timeframe]swing.Structure {
	out := make(map[ohlcv.Timeframe]swing.Structure, len(bundle.Series))
	for tf, series := range bundle.Series {
		out[tf] = swing.Compute(series, swing.DefaultLookback, swing.MinSwingATR)
	}
	return out
}

func pollUntilDone(mgr *scanjob.Manager, runID string) error {
	for {
		job, ok := mgr.GetJob(runID)
		if !ok {
			return fmt.Errorf("job %s vanished", runID)
		}
		switch job.Status {
		case scanjob.Completed, scanjob.Failed, scanjob.Cancelled:
			fmt.Printf("status=%s progress=%d/%d signals=%d rejections=%d\n",
				job.Status, job.Progress, job.Total, len(job.Signals), len(job.Rejections))
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
}
