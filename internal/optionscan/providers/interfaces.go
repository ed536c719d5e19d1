// Package providers holds the adapters the scan pipeline uses to reach
// external market-data, options, and fundamentals feeds.
package providers

import (
	"context"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// MarketDataProvider supplies a current price/volume snapshot and a trend
// read for one symbol.
type MarketDataProvider interface {
	GetMarketData(ctx context.Context, symbol optionscan.Symbol) (*optionscan.MarketData, error)
	AnalyseTrend(ctx context.Context, symbol optionscan.Symbol, days int) (*optionscan.TrendAnalysis, error)
}

// OptionsDataProvider supplies PUT contracts in a days-to-expiry window.
type OptionsDataProvider interface {
	GetShortTermPutOptions(ctx context.Context, symbol optionscan.Symbol, minDays, maxDays int) ([]optionscan.OptionContract, error)
}

// FundamentalsProvider supplies per-symbol fundamentals, looked up via the
// aggregator alongside the market and options data.
type FundamentalsProvider interface {
	GetBySymbol(ctx context.Context, symbol optionscan.Symbol) (*optionscan.Fundamentals, error)
}

// OptionsDiscoveryService discovers a universe of liquid underlyings as a
// replacement for (or supplement to) the static watchlist.
type OptionsDiscoveryService interface {
	DiscoverUnderlyings(ctx context.Context) ([]optionscan.Symbol, error)
}
