package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftscan/confluence/internal/errs"
)

func TestFixedFractional_ComputesQuantityFromRiskBudget(t *testing.T) {
	// balance=10000, risk 1% = $100 risk; entry-stop distance = 2 -> qty=50.
	res, err := FixedFractional(10000, 1, 100, 98, 1)
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Quantity)
	assert.Equal(t, 100.0, res.RiskAmount)
	assert.Equal(t, 5000.0, res.Notional)
	assert.Equal(t, "fixed_fractional", res.Method)
}

func TestFixedFractional_EntryEqualsStopIsInvalidConfig(t *testing.T) {
	_, err := FixedFractional(10000, 1, 100, 100, 1)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidConfig))
}

func TestFixedFractional_NonPositiveLeverageDefaultsToOne(t *testing.T) {
	withDefault, err := FixedFractional(10000, 1, 100, 98, 0)
	require.NoError(t, err)
	explicit, err := FixedFractional(10000, 1, 100, 98, 1)
	require.NoError(t, err)
	assert.Equal(t, explicit.Quantity, withDefault.Quantity)
}

func TestKelly_NegativeEdgeClampsToZeroQuantity(t *testing.T) {
	// win rate far too low relative to win/loss R to have positive edge.
	res, err := Kelly(10000, 0.2, 1.0, 1.0, 100, 98, 0.25, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Quantity)
	assert.Equal(t, 0.0, res.Notional)
	assert.Equal(t, 0.0, res.RiskAmount)
	assert.Equal(t, true, res.Metadata["negative_edge"])
}

func TestKelly_PositiveEdgeIsCappedByMaxRiskPct(t *testing.T) {
	// Strong edge: winRate=0.7, avgWinR=2, avgLossR=1 -> raw kelly well above maxRiskPct.
	res, err := Kelly(10000, 0.7, 2.0, 1.0, 100, 98, 1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Metadata["kelly_pct"])
	assert.Equal(t, "kelly", res.Method)
}

func TestKelly_ZeroAvgLossRIsInvalidConfig(t *testing.T) {
	_, err := Kelly(10000, 0.6, 2.0, 0, 100, 98, 0.25, 10)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidConfig))
}

func TestATRBased_DerivesStopFromATRMultiplier(t *testing.T) {
	res, err := ATRBased(10000, 2.0, 1.5, 100, 1)
	require.NoError(t, err)
	// stop = 100 - 2*1.5 = 97, distance=3, riskAmount=100*1/100=100, qty=100/3.
	assert.InDelta(t, 100.0/3.0, res.Quantity, 1e-9)
	assert.Equal(t, "atr_based", res.Method)
}

func TestFixedDollarRisk_ComputesQuantityFromFixedRiskAmount(t *testing.T) {
	res, err := FixedDollarRisk(10000, 250, 100, 95, 1)
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Quantity)
	assert.Equal(t, 2.5, res.RiskPct)
}

func TestApplyConstraints_ScalesUpToMinOrderValue(t *testing.T) {
	r := Result{Quantity: 1, Notional: 50, RiskAmount: 2, RiskPct: 1}
	out, err := ApplyConstraints(r, 50, 48, Constraints{MinOrderValue: 100, Balance: 10000, MaxPositionPct: 100, Leverage: 1})
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.Notional)
	assert.Equal(t, 2.0, out.Quantity)
}

func TestApplyConstraints_ScalesDownToMaxPositionPct(t *testing.T) {
	r := Result{Quantity: 100, Notional: 5000, RiskAmount: 100, RiskPct: 1}
	out, err := ApplyConstraints(r, 50, 48, Constraints{MaxPositionPct: 10, Balance: 10000, Leverage: 1})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, out.Notional)
	assert.Equal(t, 20.0, out.Quantity)
}

func TestApplyConstraints_ScalesDownToAvailableMargin(t *testing.T) {
	r := Result{Quantity: 100, Notional: 5000, RiskAmount: 100, RiskPct: 1}
	out, err := ApplyConstraints(r, 50, 48, Constraints{Balance: 1000, MaxPositionPct: 1000, Leverage: 2})
	require.NoError(t, err)
	// targetNotional = balance*leverage = 2000
	assert.Equal(t, 2000.0, out.Notional)
	assert.Equal(t, 40.0, out.Quantity)
}

func TestApplyConstraints_RecomputesRiskFromScaledQuantity(t *testing.T) {
	r := Result{Quantity: 1, Notional: 50, RiskAmount: 2, RiskPct: 1}
	out, err := ApplyConstraints(r, 50, 48, Constraints{MinOrderValue: 100, Balance: 10000, MaxPositionPct: 100, Leverage: 1})
	require.NoError(t, err)
	assert.Equal(t, out.Quantity*2, out.RiskAmount) // |entry-stop| = 2
}

func TestApplyConstraints_RejectsNegativeInputResult(t *testing.T) {
	_, err := ApplyConstraints(Result{Quantity: -1}, 50, 48, Constraints{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidConfig))
}

func TestApplyConstraints_RejectsOutOfRangeRiskPct(t *testing.T) {
	_, err := ApplyConstraints(Result{RiskPct: 150}, 50, 48, Constraints{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidConfig))
}
