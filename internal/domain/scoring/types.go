// Package scoring implements the confluence scorer: a deterministic,
// weight-driven aggregator of heterogeneous factors that produces a bounded
// score with synergy bonuses, conflict penalties, and strict higher-timeframe
// trend-alignment gating.
package scoring

import (
	"time"

	"github.com/driftscan/confluence/internal/domain/cycle"
	"github.com/driftscan/confluence/internal/domain/indicator"
	"github.com/driftscan/confluence/internal/domain/regime"
	"github.com/driftscan/confluence/internal/domain/smc"
	"github.com/driftscan/confluence/internal/domain/swing"
)

// Direction is the candidate trade direction.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Verdict is the scorer's allow/caution/block decision.
type Verdict string

const (
	Allowed Verdict = "allowed"
	Caution Verdict = "caution"
	Blocked Verdict = "blocked"
)

// Factor is one evaluated factor's record.
type Factor struct {
	Name         string
	RawScore     float64
	Weight       float64
	Contribution float64
	Rationale    string
	Degraded     bool // true when required inputs were missing
}

// Components breaks the final score into its named parts.
type Components struct {
	WeightedBase float64
	Synergy      float64
	Penalty      float64
	Macro        float64
}

// Trace is the full, audit-persisted output of one scoring pass.
type Trace struct {
	Symbol     string
	Direction  Direction
	Factors    []Factor
	Components Components
	FinalScore float64
	Verdict    Verdict
	Reason     string
	Timestamp  time.Time
}

// HTFProximity describes the candidate's proximity to an HTF structure level,
// used by the counter-trend caution exception.
type HTFProximity struct {
	Valid       bool
	ProximityATR float64
}

// Inputs bundles everything the factor library and HTF gate need for one
// symbol/direction evaluation.
type Inputs struct {
	Symbol        string
	Direction     Direction
	Indicators    map[string]indicator.Snapshot // by timeframe
	Patterns      map[string]smc.Inventory      // by timeframe
	SwingByTF     map[string]swing.Structure
	GlobalRegime  regime.Detection
	SymbolRegime  regime.Detection
	CycleAgg      cycle.Aggregate
	Macro         cycle.MacroContext
	HTFProximity  HTFProximity
	Mode          ModeProfile
}
