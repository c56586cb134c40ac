// Package adapter defines the exchange adapter contract the core consumes.
// The shared retry/circuit-breaking policy lives in the retry subpackage;
// the one implementation this module ships is krakenadapter.
package adapter

import (
	"context"
	"time"

	"github.com/driftscan/confluence/internal/domain/ohlcv"
)

// Ticker is the latest trade/quote snapshot for a symbol.
type Ticker struct {
	Last, Bid, Ask, Volume float64
}

// Exchange is the operations consumed by the core.
type Exchange interface {
	Name() string
	FetchOHLCV(ctx context.Context, symbol string, tf ohlcv.Timeframe, limit int, since *time.Time) (ohlcv.Series, error)
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	ListTopSymbols(ctx context.Context, n int, quoteCurrency string) ([]string, error)
	IsPerpetual(symbol string) bool
}
