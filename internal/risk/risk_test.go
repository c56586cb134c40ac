package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_RejectsNonPositiveBalance(t *testing.T) {
	_, err := NewManager(DefaultConfig(), 0)
	require.Error(t, err)
}

func TestNewManager_RejectsOutOfRangeCorrelationThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CorrelationThreshold = 1.5
	_, err := NewManager(cfg, 10000)
	require.Error(t, err)
}

func TestValidateNewTrade_PassesWithNoPriorPositions(t *testing.T) {
	m, err := NewManager(DefaultConfig(), 10000)
	require.NoError(t, err)

	check := m.ValidateNewTrade("BTC-USD", "long", 500, 100)
	assert.True(t, check.Passed)
}

func TestValidateNewTrade_MaxOpenPositionsBlocksNewSymbol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenPositions = 1
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.SetPosition("BTC-USD", Position{Symbol: "BTC-USD", Notional: 100})

	check := m.ValidateNewTrade("ETH-USD", "long", 100, 10)
	assert.False(t, check.Passed)
	assert.Equal(t, []string{"max_open_positions"}, check.LimitsHit)
}

func TestValidateNewTrade_MaxOpenPositionsAllowsResizingExistingSymbol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenPositions = 1
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.SetPosition("BTC-USD", Position{Symbol: "BTC-USD", Notional: 100})

	check := m.ValidateNewTrade("BTC-USD", "long", 50, 10)
	assert.True(t, check.Passed, "adding to an already-open symbol shouldn't trip the open-positions cap")
}

func TestValidateNewTrade_AssetExposureLimitBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAssetExposurePct = 20 // 20% of 10000 = 2000
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.SetPosition("BTC-USD", Position{Symbol: "BTC-USD", Notional: 1900})

	check := m.ValidateNewTrade("BTC-USD", "long", 200, 10)
	assert.False(t, check.Passed)
	assert.Equal(t, []string{"asset_exposure"}, check.LimitsHit)
}

func TestValidateNewTrade_CorrelatedExposureLimitBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCorrelatedExposurePct = 10 // 10% of 10000 = 1000
	cfg.CorrelationThreshold = 0.7
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.SetPosition("ETH-USD", Position{Symbol: "ETH-USD", Notional: 950})
	m.UpdateCorrelationMatrix(map[string]map[string]float64{
		"BTC-USD": {"ETH-USD": 0.85},
	})

	check := m.ValidateNewTrade("BTC-USD", "long", 100, 10)
	assert.False(t, check.Passed)
	assert.Equal(t, []string{"correlated_exposure"}, check.LimitsHit)
}

func TestValidateNewTrade_UncorrelatedPositionsDoNotCountAgainstEachOther(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCorrelatedExposurePct = 10
	cfg.CorrelationThreshold = 0.7
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.SetPosition("ETH-USD", Position{Symbol: "ETH-USD", Notional: 950})
	m.UpdateCorrelationMatrix(map[string]map[string]float64{
		"BTC-USD": {"ETH-USD": 0.1},
	})

	check := m.ValidateNewTrade("BTC-USD", "long", 100, 10)
	assert.True(t, check.Passed)
}

func TestValidateNewTrade_QuoteGroupFallbackAppliesWhenMatrixHasNoEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCorrelatedExposurePct = 10
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.SetPosition("ETH-EUR", Position{Symbol: "ETH-EUR", Notional: 950})
	m.SetQuoteGroup("ETH-EUR", "EUR")
	m.SetQuoteGroup("BTC-EUR", "EUR")

	check := m.ValidateNewTrade("BTC-EUR", "long", 100, 10)
	assert.False(t, check.Passed)
	assert.Equal(t, []string{"correlated_exposure"}, check.LimitsHit)
}

func TestValidateNewTrade_DailyLossLimitBlocksAfterExposureChecksPass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyLossPct = 5 // 5% of 10000 = 500
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.RecordTrade(Trade{Symbol: "BTC-USD", ClosedAt: time.Now().Add(-time.Hour), PnL: -600})

	check := m.ValidateNewTrade("ETH-USD", "long", 10, 1)
	assert.False(t, check.Passed)
	assert.Equal(t, []string{"daily_loss_limit"}, check.LimitsHit)
}

func TestValidateNewTrade_StaleLossesOutsideWindowDoNotCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyLossPct = 5
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)
	m.RecordTrade(Trade{Symbol: "BTC-USD", ClosedAt: time.Now().Add(-48 * time.Hour), PnL: -600})

	check := m.ValidateNewTrade("ETH-USD", "long", 10, 1)
	assert.True(t, check.Passed)
}

func TestValidateNewTrade_PositionConcentrationLimitBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionConcentrationPct = 15 // 15% of 10000 = 1500
	m, err := NewManager(cfg, 10000)
	require.NoError(t, err)

	check := m.ValidateNewTrade("BTC-USD", "long", 1600, 50)
	assert.False(t, check.Passed)
	assert.Equal(t, []string{"position_concentration"}, check.LimitsHit)
}

func TestSetPosition_ZeroNotionalClearsPosition(t *testing.T) {
	m, err := NewManager(DefaultConfig(), 10000)
	require.NoError(t, err)
	m.SetPosition("BTC-USD", Position{Symbol: "BTC-USD", Notional: 500})
	m.SetPosition("BTC-USD", Position{Symbol: "BTC-USD", Notional: 0})

	summary := m.GetSummary()
	assert.Equal(t, 0, summary.OpenPositions)
}

func TestRecordTrade_UpdatesRunningBalance(t *testing.T) {
	m, err := NewManager(DefaultConfig(), 10000)
	require.NoError(t, err)
	m.RecordTrade(Trade{Symbol: "BTC-USD", ClosedAt: time.Now(), PnL: -200})
	m.RecordTrade(Trade{Symbol: "BTC-USD", ClosedAt: time.Now(), PnL: 50})

	summary := m.GetSummary()
	assert.Equal(t, 9850.0, summary.AccountBalance)
	assert.Equal(t, 10000.0, summary.InitialBalance)
}

func TestGetSummary_ProfitableWindowReportsZeroLoss(t *testing.T) {
	m, err := NewManager(DefaultConfig(), 10000)
	require.NoError(t, err)
	m.RecordTrade(Trade{Symbol: "BTC-USD", ClosedAt: time.Now(), PnL: 500})

	summary := m.GetSummary()
	assert.Equal(t, 0.0, summary.DailyLoss)
	assert.Equal(t, 0.0, summary.WeeklyLoss)
}
