// Package store implements an append-only Postgres audit ledger for closed
// trades, mirroring the in-memory risk manager's trade history for replay
// and audit. It is never consulted by validate_new_trade — that decision
// path stays in-memory and bounded.
package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// TradeRecord is one audit-ledger row.
type TradeRecord struct {
	Symbol   string    `db:"symbol"`
	Direction string   `db:"direction"`
	ClosedAt time.Time `db:"closed_at"`
	PnL      float64   `db:"pnl"`
}

// Ledger appends closed trades to a Postgres table. Constructing a Ledger is
// optional: when POSTGRES_DSN is unset the caller simply never builds one
// and risk auditing degrades to in-memory-only, which is not fatal.
type Ledger struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_history (
	id SERIAL PRIMARY KEY,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	closed_at TIMESTAMPTZ NOT NULL,
	pnl DOUBLE PRECISION NOT NULL
)`

// Open connects to Postgres and ensures the audit table exists.
func Open(dsn string) (*Ledger, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Append writes one closed-trade record. Failures are logged, not fatal —
// the audit ledger is a durability convenience, not part of the risk
// decision path.
func (l *Ledger) Append(ctx context.Context, rec TradeRecord) {
	_, err := l.db.NamedExecContext(ctx,
		`INSERT INTO trade_history (symbol, direction, closed_at, pnl) VALUES (:symbol, :direction, :closed_at, :pnl)`,
		rec)
	if err != nil {
		log.Warn().Err(err).Str("symbol", rec.Symbol).Msg("risk: audit ledger write failed")
	}
}

// Recent returns the most recent N records for a symbol, newest first.
func (l *Ledger) Recent(ctx context.Context, symbol string, limit int) ([]TradeRecord, error) {
	var out []TradeRecord
	err := l.db.SelectContext(ctx, &out,
		`SELECT symbol, direction, closed_at, pnl FROM trade_history WHERE symbol = $1 ORDER BY closed_at DESC LIMIT $2`,
		symbol, limit)
	return out, err
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error { return l.db.Close() }
