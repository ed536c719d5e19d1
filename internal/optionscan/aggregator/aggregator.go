// Package aggregator fans a symbol out concurrently to the market,
// options, and fundamentals providers and joins the results into one
// AggregatedMarketData bundle.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/vire/internal/common"
	"github.com/bobmcallan/vire/internal/optionscan"
	"github.com/bobmcallan/vire/internal/optionscan/providers"
)

// DefaultTimeout bounds the whole per-symbol fan-in.
const DefaultTimeout = 60 * time.Second

// DividendProvider is an optional fourth source consulted for
// DividendMomentum; left nil if the deployment has none configured.
type DividendProvider interface {
	GetDividendInfo(ctx context.Context, symbol optionscan.Symbol) (*optionscan.DividendInfo, error)
}

// Aggregator composes MarketDataProvider, OptionsDataProvider, and
// FundamentalsProvider concurrently for one symbol: N concurrent calls
// joined by a sync.WaitGroup.
type Aggregator struct {
	market       providers.MarketDataProvider
	options      providers.OptionsDataProvider
	fundamentals providers.FundamentalsProvider
	dividends    DividendProvider
	minDays      int
	maxDays      int
	timeout      time.Duration
	logger       *common.Logger
}

// Option configures Aggregator.
type Option func(*Aggregator)

func WithDividendProvider(d DividendProvider) Option {
	return func(a *Aggregator) { a.dividends = d }
}

func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

func WithLogger(logger *common.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// New builds an Aggregator. minDays/maxDays scope the options-chain window
// requested from OptionsDataProvider, normally the union of every
// strategy's expiry bounds.
func New(market providers.MarketDataProvider, options providers.OptionsDataProvider, fundamentals providers.FundamentalsProvider, minDays, maxDays int, opts ...Option) *Aggregator {
	a := &Aggregator{
		market:       market,
		options:      options,
		fundamentals: fundamentals,
		minDays:      minDays,
		maxDays:      maxDays,
		timeout:      DefaultTimeout,
		logger:       common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate fetches all sources concurrently for symbol. It returns an
// error only if every source fails; a partial result carries nil fields
// for whichever sources failed.
func (a *Aggregator) Aggregate(ctx context.Context, symbol optionscan.Symbol) (*optionscan.AggregatedMarketData, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result := &optionscan.AggregatedMarketData{Symbol: symbol}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		attempts  int
	)

	run := func(fn func() bool) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := fn()
			mu.Lock()
			attempts++
			if ok {
				successes++
			}
			mu.Unlock()
		}()
	}

	run(func() bool {
		md, err := a.market.GetMarketData(ctx, symbol)
		if err != nil || md == nil {
			a.logger.Debug().Str("symbol", string(symbol)).Err(err).Msg("market data unavailable")
			return false
		}
		mu.Lock()
		result.MarketData = md
		mu.Unlock()
		return true
	})

	run(func() bool {
		trend, err := a.market.AnalyseTrend(ctx, symbol, 30)
		if err != nil || trend == nil {
			a.logger.Debug().Str("symbol", string(symbol)).Err(err).Msg("trend analysis unavailable")
			return false
		}
		mu.Lock()
		result.TrendAnalysis = trend
		mu.Unlock()
		return true
	})

	run(func() bool {
		contracts, err := a.options.GetShortTermPutOptions(ctx, symbol, a.minDays, a.maxDays)
		if err != nil {
			a.logger.Debug().Str("symbol", string(symbol)).Err(err).Msg("options chain unavailable")
			return false
		}
		mu.Lock()
		result.Options = contracts
		mu.Unlock()
		return true
	})

	run(func() bool {
		f, err := a.fundamentals.GetBySymbol(ctx, symbol)
		if err != nil || f == nil {
			a.logger.Debug().Str("symbol", string(symbol)).Err(err).Msg("fundamentals unavailable")
			return false
		}
		mu.Lock()
		result.FinancialHealthMetrics = &optionscan.FinancialHealthMetrics{
			PiotroskiFScore: f.PiotroskiFScore,
			AltmanZScore:    f.AltmanZScore,
		}
		mu.Unlock()
		return true
	})

	if a.dividends != nil {
		run(func() bool {
			d, err := a.dividends.GetDividendInfo(ctx, symbol)
			if err != nil || d == nil {
				return false
			}
			mu.Lock()
			result.DividendInfo = d
			mu.Unlock()
			return true
		})
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if successes == 0 {
		return nil, fmt.Errorf("%w: all %d providers failed for %s", optionscan.ErrProvider, attempts, symbol)
	}
	return result, nil
}
