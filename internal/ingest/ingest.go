// Package ingest assembles a validated multi-timeframe OHLCV bundle for one
// symbol, treating the exchange adapter as untrusted input.
package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/driftscan/confluence/internal/adapter"
	"github.com/driftscan/confluence/internal/cache"
	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/errs"
)

// Requirement names one timeframe and the minimum bar count the downstream
// stages need of it.
type Requirement struct {
	Timeframe ohlcv.Timeframe
	MinBars   int
}

// PrimaryHTF is the timeframe whose absence rejects the whole symbol with
// DataUnavailable, regardless of how many other timeframes succeeded.
const PrimaryHTF = ohlcv.TF4h

// Assemble builds the MTF bundle for symbol from the given requirements,
// preferring cache hits and falling back to the adapter. Each bar is
// re-validated; malformed rows are dropped. A timeframe with too few bars
// after cleaning fails with DataUnavailable; the
// primary HTF's absence fails the whole symbol with DataUnavailable.
func Assemble(ctx context.Context, ex adapter.Exchange, cacheMgr *cache.Manager, symbol string, reqs []Requirement) (*ohlcv.Bundle, error) {
	bundle := &ohlcv.Bundle{Symbol: symbol, Series: make(map[ohlcv.Timeframe]ohlcv.Series)}

	for _, req := range reqs {
		series, err := fetchTimeframe(ctx, ex, cacheMgr, symbol, req)
		if err != nil {
			if req.Timeframe == PrimaryHTF {
				return nil, errs.Wrap(errs.DataUnavailable, fmt.Sprintf("primary HTF %s unavailable for %s", req.Timeframe, symbol), err)
			}
			continue // non-primary TF loss is tolerated; scorer degrades gracefully
		}
		bundle.Series[req.Timeframe] = series
	}

	if _, ok := bundle.Series[PrimaryHTF]; !ok {
		return nil, errs.New(errs.DataUnavailable, fmt.Sprintf("primary HTF %s missing for %s", PrimaryHTF, symbol))
	}
	return bundle, nil
}

func fetchTimeframe(ctx context.Context, ex adapter.Exchange, cacheMgr *cache.Manager, symbol string, req Requirement) (ohlcv.Series, error) {
	key := cacheKey(symbol, req.Timeframe)
	if v, ok := cacheMgr.GetOHLCV(key); ok {
		if series, ok := v.(ohlcv.Series); ok {
			return series, nil
		}
	}

	raw, err := ex.FetchOHLCV(ctx, symbol, req.Timeframe, req.MinBars, nil)
	if err != nil {
		return nil, errs.Wrap(errs.DataUnavailable, "adapter fetch failed", err)
	}

	cleaned := validateAndClean(raw)
	if len(cleaned) < req.MinBars {
		return nil, errs.New(errs.DataUnavailable, fmt.Sprintf("insufficient bars after cleaning: %d < %d", len(cleaned), req.MinBars))
	}

	sort.Slice(cleaned, func(i, j int) bool { return cleaned[i].Timestamp.Before(cleaned[j].Timestamp) })
	cacheMgr.SetOHLCV(key, cleaned, req.Timeframe)
	return cleaned, nil
}

// validateAndClean drops bars that violate the OHLCV invariant.
func validateAndClean(bars ohlcv.Series) ohlcv.Series {
	out := make(ohlcv.Series, 0, len(bars))
	for _, b := range bars {
		if b.Validate() == nil {
			out = append(out, b)
		}
	}
	return out
}

func cacheKey(symbol string, tf ohlcv.Timeframe) string {
	return symbol + ":" + string(tf)
}
