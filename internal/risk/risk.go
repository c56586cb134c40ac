// Package risk implements the portfolio risk manager: pre-trade validation,
// correlation matrix, and exposure/loss limit enforcement. All mutation is
// under a single lock.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/driftscan/confluence/internal/errs"
	"github.com/driftscan/confluence/internal/risk/store"
)

// Position is one open position.
type Position struct {
	Symbol        string
	Direction     string
	Notional      float64
	EntryPrice    float64
	QuoteCurrency string
}

// Trade is a closed trade's ledger entry, consulted for period-loss queries.
type Trade struct {
	Symbol    string
	Direction string
	ClosedAt  time.Time
	PnL       float64
}

// Config is the pinned set of portfolio risk limits.
type Config struct {
	MaxOpenPositions           int
	MaxAssetExposurePct        float64
	MaxCorrelatedExposurePct   float64
	MaxDailyLossPct            float64
	MaxWeeklyLossPct           float64
	MaxPositionConcentrationPct float64
	CorrelationThreshold       float64
}

// DefaultConfig holds the baseline risk envelope thresholds.
func DefaultConfig() Config {
	return Config{
		MaxOpenPositions: 10, MaxAssetExposurePct: 20, MaxCorrelatedExposurePct: 30,
		MaxDailyLossPct: 5, MaxWeeklyLossPct: 10, MaxPositionConcentrationPct: 15,
		CorrelationThreshold: 0.7,
	}
}

// Validate rejects a non-positive balance or a correlation threshold outside
// [-1,1] as InvalidConfig, fatal at startup. The other limits are not
// range-checked.
func (c Config) Validate(balance float64) error {
	if balance <= 0 {
		return errs.New(errs.InvalidConfig, "account balance must be positive")
	}
	if c.CorrelationThreshold < -1 || c.CorrelationThreshold > 1 {
		return errs.New(errs.InvalidConfig, "correlation threshold must be in [-1,1]")
	}
	return nil
}

// Manager is the process-wide risk manager. All fields mutate under mu.
type Manager struct {
	mu               sync.Mutex
	config           Config
	accountBalance   float64
	initialBalance   float64
	positions        map[string]Position
	tradeHistory     []Trade
	correlationMatrix map[string]map[string]float64
	quoteGroups      map[string]string // symbol -> quote currency, static fallback grouping
	ledger           *store.Ledger     // optional Postgres audit trail, nil unless POSTGRES_DSN is set
}

// SetAuditLedger attaches an optional durable audit trail. Every RecordTrade
// call after this also appends to ledger; a nil ledger (the default)
// leaves RecordTrade entirely in-memory.
func (m *Manager) SetAuditLedger(ledger *store.Ledger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = ledger
}

// NewManager constructs a risk manager with a validated config and starting
// balance.
func NewManager(cfg Config, balance float64) (*Manager, error) {
	if err := cfg.Validate(balance); err != nil {
		return nil, err
	}
	return &Manager{
		config: cfg, accountBalance: balance, initialBalance: balance,
		positions: make(map[string]Position), correlationMatrix: make(map[string]map[string]float64),
		quoteGroups: make(map[string]string),
	}, nil
}

// Check is the outcome of validate_new_trade.
type Check struct {
	Passed    bool
	Reason    string
	LimitsHit []string
}

// ValidateNewTrade runs the ordered pre-trade checks; the first failure
// short-circuits the remainder.
func (m *Manager) ValidateNewTrade(symbol, direction string, positionValue, riskAmount float64) Check {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.positions[symbol]

	if len(m.positions) >= m.config.MaxOpenPositions && !exists {
		return Check{Reason: "max open positions reached", LimitsHit: []string{"max_open_positions"}}
	}

	assetExposure := m.currentAssetExposureLocked(symbol)
	if assetExposure+positionValue > m.config.MaxAssetExposurePct/100*m.accountBalance {
		return Check{Reason: "asset exposure limit exceeded", LimitsHit: []string{"asset_exposure"}}
	}

	correlatedExposure := m.correlatedExposureLocked(symbol)
	if correlatedExposure+positionValue > m.config.MaxCorrelatedExposurePct/100*m.accountBalance {
		return Check{Reason: "correlated exposure limit exceeded", LimitsHit: []string{"correlated_exposure"}}
	}

	dailyLoss := m.periodLossLocked(24 * time.Hour)
	maxDaily := m.config.MaxDailyLossPct / 100 * m.accountBalance
	if dailyLoss >= maxDaily {
		return Check{Reason: fmt.Sprintf("daily loss limit hit: %.2f >= %.2f", dailyLoss, maxDaily), LimitsHit: []string{"daily_loss_limit"}}
	}

	weeklyLoss := m.periodLossLocked(168 * time.Hour)
	maxWeekly := m.config.MaxWeeklyLossPct / 100 * m.accountBalance
	if weeklyLoss >= maxWeekly {
		return Check{Reason: fmt.Sprintf("weekly loss limit hit: %.2f >= %.2f", weeklyLoss, maxWeekly), LimitsHit: []string{"weekly_loss_limit"}}
	}

	if positionValue > m.config.MaxPositionConcentrationPct/100*m.accountBalance {
		return Check{Reason: "position concentration limit exceeded", LimitsHit: []string{"position_concentration"}}
	}

	return Check{Passed: true}
}

func (m *Manager) currentAssetExposureLocked(symbol string) float64 {
	if p, ok := m.positions[symbol]; ok {
		return p.Notional
	}
	return 0
}

// correlatedExposureLocked sums the notionals of positions whose correlation
// with the candidate exceeds the threshold; falls back to static
// quote-currency grouping when the matrix has no entry for the pair.
func (m *Manager) correlatedExposureLocked(symbol string) float64 {
	var sum float64
	row, hasRow := m.correlationMatrix[symbol]
	for sym, pos := range m.positions {
		if sym == symbol {
			continue
		}
		if hasRow {
			if c, ok := row[sym]; ok {
				if math.Abs(c) >= m.config.CorrelationThreshold {
					sum += pos.Notional
				}
				continue
			}
		}
		if m.quoteGroups[sym] != "" && m.quoteGroups[sym] == m.quoteGroups[symbol] {
			sum += pos.Notional
		}
	}
	return sum
}

// periodLossLocked computes |min(0, Σ trade.pnl in window)|.
func (m *Manager) periodLossLocked(window time.Duration) float64 {
	cutoff := time.Now().Add(-window)
	var sum float64
	for _, t := range m.tradeHistory {
		if t.ClosedAt.After(cutoff) {
			sum += t.PnL
		}
	}
	if sum > 0 {
		return 0
	}
	return math.Abs(sum)
}

// RecordTrade appends a closed trade to the in-memory history under lock,
// and write-through's to the audit ledger (if attached) outside the lock.
func (m *Manager) RecordTrade(t Trade) {
	m.mu.Lock()
	m.tradeHistory = append(m.tradeHistory, t)
	m.accountBalance += t.PnL
	ledger := m.ledger
	m.mu.Unlock()

	if ledger != nil {
		ledger.Append(context.Background(), store.TradeRecord{
			Symbol: t.Symbol, Direction: t.Direction, ClosedAt: t.ClosedAt, PnL: t.PnL,
		})
	}
}

// SetPosition records (or clears, with zero Notional) an open position.
func (m *Manager) SetPosition(symbol string, p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Notional == 0 {
		delete(m.positions, symbol)
		return
	}
	m.positions[symbol] = p
}

// SetQuoteGroup records a symbol's quote currency for the static-grouping
// correlated-exposure fallback.
func (m *Manager) SetQuoteGroup(symbol, quote string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteGroups[symbol] = quote
}

// UpdateCorrelationMatrix atomically replaces the full matrix under lock.
func (m *Manager) UpdateCorrelationMatrix(matrix map[string]map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.correlationMatrix = matrix
}

// Summary is a read-only snapshot for reporting.
type Summary struct {
	AccountBalance float64
	InitialBalance float64
	OpenPositions  int
	DailyLoss      float64
	WeeklyLoss     float64
}

// GetSummary returns a consistent snapshot of the manager's state.
func (m *Manager) GetSummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		AccountBalance: m.accountBalance, InitialBalance: m.initialBalance,
		OpenPositions: len(m.positions),
		DailyLoss:     m.periodLossLocked(24 * time.Hour),
		WeeklyLoss:    m.periodLossLocked(168 * time.Hour),
	}
}
