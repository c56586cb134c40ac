// Package sizing implements the four position-sizing strategies and the
// shared post-sizing constraint chain.
package sizing

import (
	"math"

	"github.com/driftscan/confluence/internal/errs"
)

// Result is the common output shape of every sizing strategy.
type Result struct {
	Quantity    float64
	Notional    float64
	RiskAmount  float64
	RiskPct     float64
	PositionPct float64
	Method      string
	Metadata    map[string]any
}

// Constraints bounds applied in order to every sizing result.
type Constraints struct {
	MinOrderValue float64
	MaxPositionPct float64 // of balance
	Balance       float64
	Leverage      float64
}

func stopDistance(entry, stop float64) (float64, error) {
	d := math.Abs(entry - stop)
	if d == 0 {
		return 0, errs.New(errs.InvalidConfig, "entry must not equal stop")
	}
	return d, nil
}

// FixedFractional: quantity = (balance * risk_pct/100) / |entry-stop|.
// Leverage does not change quantity or risk; the margin check against
// notional/leverage happens in ApplyConstraints.
func FixedFractional(balance, riskPct, entry, stop, leverage float64) (Result, error) {
	d, err := stopDistance(entry, stop)
	if err != nil {
		return Result{}, err
	}
	if leverage <= 0 {
		leverage = 1
	}
	riskAmount := balance * riskPct / 100
	qty := riskAmount / d
	return finalize(qty, entry, riskAmount, riskPct, balance, "fixed_fractional", leverage, nil)
}

// Kelly computes the Kelly-criterion risk percentage and delegates to
// FixedFractional.
func Kelly(balance, winRate, avgWinR, avgLossR, entry, stop, kellyFraction, maxRiskPct float64) (Result, error) {
	if kellyFraction <= 0 {
		kellyFraction = 0.25
	}
	if avgLossR == 0 {
		return Result{}, errs.New(errs.InvalidConfig, "avg_loss_R must not be zero")
	}
	b := avgWinR / avgLossR
	kellyPct := ((winRate*b - (1 - winRate)) / b) * kellyFraction * 100
	zeroFlag := false
	if kellyPct < 0 {
		kellyPct = 0
		zeroFlag = true
	}
	if kellyPct > maxRiskPct {
		kellyPct = maxRiskPct
	}
	res, err := FixedFractional(balance, kellyPct, entry, stop, 1)
	if err != nil {
		return Result{}, err
	}
	res.Method = "kelly"
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["kelly_pct"] = kellyPct
	if zeroFlag {
		res.Metadata["negative_edge"] = true
		res.Quantity = 0
		res.Notional = 0
		res.RiskAmount = 0
	}
	return res, nil
}

// ATRBased derives stop distance from ATR and delegates to FixedFractional.
func ATRBased(balance, atr, atrMultiplier, entry, riskPct float64) (Result, error) {
	stop := entry - atr*atrMultiplier
	if riskPct <= 0 {
		riskPct = 1
	}
	res, err := FixedFractional(balance, riskPct, entry, stop, 1)
	if err != nil {
		return Result{}, err
	}
	res.Method = "atr_based"
	return res, nil
}

// FixedDollarRisk: quantity = risk_amount / |entry-stop|.
func FixedDollarRisk(balance, riskAmount, entry, stop, leverage float64) (Result, error) {
	d, err := stopDistance(entry, stop)
	if err != nil {
		return Result{}, err
	}
	if leverage <= 0 {
		leverage = 1
	}
	qty := riskAmount / d
	riskPct := 0.0
	if balance > 0 {
		riskPct = riskAmount / balance * 100
	}
	return finalize(qty, entry, riskAmount, riskPct, balance, "fixed_dollar_risk", leverage, nil)
}

func finalize(qty, entry, riskAmount, riskPct, balance float64, method string, leverage float64, meta map[string]any) (Result, error) {
	notional := qty * entry
	positionPct := 0.0
	if balance > 0 {
		positionPct = notional / balance * 100
	}
	return Result{
		Quantity: qty, Notional: notional, RiskAmount: riskAmount, RiskPct: riskPct,
		PositionPct: positionPct, Method: method, Metadata: meta,
	}, nil
}

// ApplyConstraints runs the three ordered scaling rules, then recomputes
// actual_risk from the scaled quantity.
func ApplyConstraints(r Result, entry, stop float64, c Constraints) (Result, error) {
	if r.Quantity < 0 || r.Notional < 0 || r.RiskAmount < 0 {
		return Result{}, errs.New(errs.InvalidConfig, "sizing result must be non-negative")
	}
	if r.RiskPct < 0 || r.RiskPct > 100 {
		return Result{}, errs.New(errs.InvalidConfig, "risk_pct must be in [0,100]")
	}

	out := r
	if c.MinOrderValue > 0 && out.Notional > 0 && out.Notional < c.MinOrderValue {
		scale := c.MinOrderValue / out.Notional
		out.Notional = c.MinOrderValue
		out.Quantity *= scale
	}

	maxNotional := c.MaxPositionPct / 100 * c.Balance
	if maxNotional > 0 && out.Notional > maxNotional {
		scale := maxNotional / out.Notional
		out.Notional = maxNotional
		out.Quantity *= scale
	}

	leverage := c.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	if out.Notional/leverage > c.Balance {
		targetNotional := c.Balance * leverage
		scale := targetNotional / out.Notional
		out.Notional = targetNotional
		out.Quantity *= scale
	}

	d := math.Abs(entry - stop)
	out.RiskAmount = out.Quantity * d
	if c.Balance > 0 {
		out.RiskPct = out.RiskAmount / c.Balance * 100
	}
	return out, nil
}
