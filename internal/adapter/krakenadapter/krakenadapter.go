// Package krakenadapter implements internal/adapter.Exchange over the
// existing Kraken REST client, the one concrete exchange wiring this module
// carries — every other provider stays contract-only per spec.
package krakenadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/driftscan/confluence/internal/adapter"
	"github.com/driftscan/confluence/internal/domain/ohlcv"
	"github.com/driftscan/confluence/internal/errs"
	"github.com/driftscan/confluence/internal/providers/kraken"
)

// Adapter wraps a kraken.Client to satisfy adapter.Exchange.
type Adapter struct {
	client *kraken.Client
}

// New builds an adapter around a freshly configured Kraken client.
func New() *Adapter {
	return &Adapter{client: kraken.NewClient(kraken.Config{})}
}

func (a *Adapter) Name() string { return "kraken" }

var intervalMinutes = map[ohlcv.Timeframe]int{
	ohlcv.TF15m: 15,
	ohlcv.TF1h:  60,
	ohlcv.TF4h:  240,
	ohlcv.TF1d:  1440,
}

// FetchOHLCV fetches candles for symbol (e.g. "BTC-USD") at tf, returning at
// most limit of the most recent bars.
func (a *Adapter) FetchOHLCV(ctx context.Context, symbol string, tf ohlcv.Timeframe, limit int, since *time.Time) (ohlcv.Series, error) {
	interval, ok := intervalMinutes[tf]
	if !ok {
		return nil, errs.New(errs.InvalidConfig, fmt.Sprintf("unsupported timeframe for kraken adapter: %s", tf))
	}

	var sinceUnix int64
	if since != nil {
		sinceUnix = since.Unix()
	}

	resp, err := a.client.GetOHLC(ctx, toKrakenPair(symbol), interval, sinceUnix)
	if err != nil {
		return nil, errs.Wrap(errs.DataUnavailable, "kraken OHLC fetch failed", err)
	}

	series := make(ohlcv.Series, 0, len(resp.Bars))
	for _, bar := range resp.Bars {
		series = append(series, ohlcv.Bar{
			Timestamp: bar.Time, Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close, Volume: bar.Volume,
		})
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series, nil
}

func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (adapter.Ticker, error) {
	tickers, err := a.client.GetTicker(ctx, []string{toKrakenPair(symbol)})
	if err != nil {
		return adapter.Ticker{}, errs.Wrap(errs.DataUnavailable, "kraken ticker fetch failed", err)
	}
	info, ok := tickers[symbol]
	if !ok {
		for _, v := range tickers {
			info = v
			ok = true
			break
		}
	}
	if !ok {
		return adapter.Ticker{}, errs.New(errs.DataUnavailable, "no ticker returned for "+symbol)
	}
	last, _ := info.GetMidPrice()
	bid, _ := info.GetBidPrice()
	ask, _ := info.GetAskPrice()
	vol, _ := info.Get24hVolume()
	return adapter.Ticker{Last: last, Bid: bid, Ask: ask, Volume: vol}, nil
}

// ListTopSymbols is not backed by a Kraken ranking endpoint; it returns a
// curated USD majors list, sufficient for local/manual scans.
func (a *Adapter) ListTopSymbols(ctx context.Context, n int, quoteCurrency string) ([]string, error) {
	majors := []string{"BTC-USD", "ETH-USD", "SOL-USD", "XRP-USD", "ADA-USD", "DOGE-USD", "AVAX-USD", "LINK-USD"}
	if n > 0 && n < len(majors) {
		majors = majors[:n]
	}
	return majors, nil
}

// IsPerpetual is always false: Kraken spot has no perpetual futures on this
// surface.
func (a *Adapter) IsPerpetual(symbol string) bool { return false }

func toKrakenPair(symbol string) string {
	return strings.ReplaceAll(symbol, "-", "")
}
