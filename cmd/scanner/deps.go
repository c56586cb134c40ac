package main

import (
	"fmt"
	"os"

	"github.com/driftscan/confluence/internal/adapter/krakenadapter"
	"github.com/driftscan/confluence/internal/cache"
	"github.com/driftscan/confluence/internal/cooldown"
	"github.com/driftscan/confluence/internal/domain/indicator"
	"github.com/driftscan/confluence/internal/domain/regime"
	"github.com/driftscan/confluence/internal/domain/scoring"
	"github.com/driftscan/confluence/internal/domain/smc"
	"github.com/driftscan/confluence/internal/pipeline"
	"github.com/driftscan/confluence/internal/risk"
	"github.com/driftscan/confluence/internal/risk/store"
	"github.com/driftscan/confluence/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// appState bundles everything a CLI command needs to build a pipeline.Deps
// and a scanjob.Manager. It is assembled once per process invocation.
type appState struct {
	cache      *cache.Manager
	risk       *risk.Manager
	cooldowns  *cooldown.Store
	telemetry  *telemetry.Sink
	weights    *scoring.WeightsConfig
	regimeHist *regime.History
}

func newAppState() (*appState, error) {
	weightsPath := os.Getenv("WEIGHTS_CONFIG")
	var weights *scoring.WeightsConfig
	if weightsPath != "" {
		w, err := scoring.LoadWeightsConfig(weightsPath)
		if err != nil {
			return nil, fmt.Errorf("load weights config: %w", err)
		}
		weights = w
	} else {
		weights = scoring.DefaultWeightsConfig()
	}

	cooldownPath := os.Getenv("COOLDOWN_STORE")
	if cooldownPath == "" {
		cooldownPath = "cooldowns.json"
	}
	cooldowns, err := cooldown.Open(cooldownPath)
	if err != nil {
		return nil, fmt.Errorf("open cooldown store: %w", err)
	}

	riskCfg := risk.DefaultConfig()
	balance := 10000.0
	riskMgr, err := risk.NewManager(riskCfg, balance)
	if err != nil {
		return nil, fmt.Errorf("init risk manager: %w", err)
	}

	cacheMgr := cache.Get()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cacheMgr.SetBacking(cache.OHLCV, cache.NewRedisBacking(addr))
		cacheMgr.SetBacking(cache.Price, cache.NewRedisBacking(addr))
	}

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		ledger, err := store.Open(dsn)
		if err != nil {
			log.Warn().Err(err).Msg("scanner: audit ledger unavailable, continuing in-memory-only")
		} else {
			riskMgr.SetAuditLedger(ledger)
		}
	}

	return &appState{
		cache:      cacheMgr,
		risk:       riskMgr,
		cooldowns:  cooldowns,
		telemetry:  telemetry.NewSink(),
		weights:    weights,
		regimeHist: regime.NewHistory(),
	}, nil
}

// buildPipelineDeps wires a concrete pipeline.Deps for mode against the
// state's shared collaborators, using the Kraken adapter and the built-in
// indicator source as this binary's one concrete exchange/indicator wiring.
func (a *appState) buildPipelineDeps(mode scoring.ModeProfile, minConfluence float64) pipeline.Deps {
	ex := krakenadapter.New()
	return pipeline.Deps{
		Exchange:      ex,
		Cache:         a.cache,
		Indicators:    indicator.NewBuiltinSource(ex, a.cache),
		Patterns:      smc.NullDetector{},
		Risk:          a.risk,
		Cooldowns:     a.cooldowns,
		Telemetry:     a.telemetry,
		Weights:       a.weights.WeightsFor(mode),
		SynergyRules:  scoring.DefaultSynergyRules,
		MinConfluence: minConfluence,
	}
}
