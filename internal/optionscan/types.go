// Package optionscan implements the daily PUT-selling market scanner: a
// singleton orchestrator that fetches fundamentals and option-chain data
// for a universe of tickers, runs pluggable scoring strategies, persists
// the results, and streams per-symbol progress to any number of
// subscribers.
package optionscan

import (
	"strings"
	"time"
)

// Symbol is a non-empty, upper-case ticker string. Unique key throughout
// the scanner.
type Symbol string

// NormalizeSymbol upper-cases and trims a raw ticker string. Returns ""
// for blank input, which callers must treat as invalid.
func NormalizeSymbol(raw string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(raw)))
}

// StockData is the single persisted record per symbol. Its fields group
// into an identity layer and two independently-written layers
// (fundamentals, market/options) so that the two upstream feeds never
// clobber each other's half of the record.
type StockData struct {
	Symbol           Symbol    `json:"symbol" badgerhold:"key"`
	ModificationTime time.Time `json:"modification_time" badgerhold:"index"`

	// Fundamentals layer — written by FundamentalsProvider ingest,
	// preserved verbatim by market-layer upserts.
	ReportDate            time.Time `json:"report_date,omitempty"`
	PiotroskiFScore       int       `json:"piotroski_f_score,omitempty"`
	AltmanZScore          float64   `json:"altman_z_score,omitempty"`
	ROA                   float64   `json:"roa,omitempty"`
	DebtToEquity          float64   `json:"debt_to_equity,omitempty"`
	CurrentRatio          float64   `json:"current_ratio,omitempty"`
	MarketCapBillions     float64   `json:"market_cap_billions,omitempty"`
	TotalAssets           float64   `json:"total_assets,omitempty"`
	TotalLiabilities      float64   `json:"total_liabilities,omitempty"`
	TotalEquity           float64   `json:"total_equity,omitempty"`
	Revenue               float64   `json:"revenue,omitempty"`
	NetIncome             float64   `json:"net_income,omitempty"`
	OperatingCashFlow     float64   `json:"operating_cash_flow,omitempty"`
	SharesOutstanding     int64     `json:"shares_outstanding,omitempty"`
	FundamentalsUpdatedAt time.Time `json:"fundamentals_updated_at,omitempty"`

	// Market/options layer — written by the exchange feed (the scan
	// pipeline's top recommendation per symbol), preserved verbatim by
	// fundamentals-layer upserts.
	CurrentPrice           float64   `json:"current_price,omitempty"`
	StrikePrice            float64   `json:"strike_price,omitempty"`
	Expiry                 time.Time `json:"expiry,omitempty"`
	DaysToExpiry           int       `json:"days_to_expiry,omitempty"`
	Premium                float64   `json:"premium,omitempty"`
	Breakeven              float64   `json:"breakeven,omitempty"`
	Confidence             float64   `json:"confidence,omitempty"`
	ExpectedGrowthPercent  float64   `json:"expected_growth_percent,omitempty"`
	StrategyName           string    `json:"strategy_name,omitempty"`
	ExchangeSymbol         string    `json:"exchange_symbol,omitempty"`
	OptionPrice            float64   `json:"option_price,omitempty"`
	Volume                 int64     `json:"volume,omitempty"`
	OpenInterest           int64     `json:"open_interest,omitempty"`
	MarketUpdatedAt        time.Time `json:"market_updated_at,omitempty"`
}

// HasFundamentals reports whether the fundamentals layer has ever been
// written.
func (s *StockData) HasFundamentals() bool {
	return s != nil && !s.FundamentalsUpdatedAt.IsZero()
}

// HasMarketLayer reports whether the market/options layer has ever been
// written.
func (s *StockData) HasMarketLayer() bool {
	return s != nil && !s.MarketUpdatedAt.IsZero()
}

// ScanStatus is the terminal/in-flight state of a ScanLog.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusSucceeded ScanStatus = "succeeded"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanLog is an append-only record bracketing one scan attempt.
type ScanLog struct {
	ID                        string     `json:"id" badgerhold:"key"`
	StartedAt                 time.Time  `json:"started_at"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
	SymbolsScanned            int        `json:"symbols_scanned"`
	RecommendationsGenerated  int        `json:"recommendations_generated"`
	Status                    ScanStatus `json:"status" badgerhold:"index"`
	ErrorMessage              string     `json:"error_message,omitempty"`
}

// Duration returns the scan's wall-clock duration, or zero if still
// running.
func (l *ScanLog) Duration() time.Duration {
	if l == nil || l.CompletedAt == nil {
		return 0
	}
	return l.CompletedAt.Sub(l.StartedAt)
}

// TrendDirection classifies a MarketDataProvider trend analysis.
type TrendDirection string

const (
	TrendUp       TrendDirection = "up"
	TrendDown     TrendDirection = "down"
	TrendSideways TrendDirection = "sideways"
)

// MarketData is the current-price snapshot returned by MarketDataProvider.
type MarketData struct {
	Symbol      Symbol    `json:"symbol"`
	Price       float64   `json:"price"`
	Volume      int64     `json:"volume"`
	AsOf        time.Time `json:"as_of"`
}

// TrendAnalysis is MarketDataProvider's directional read on a symbol.
type TrendAnalysis struct {
	Direction             TrendDirection `json:"direction"`
	Confidence            float64        `json:"confidence"`              // [0,1]
	TrendStrength         float64        `json:"trend_strength"`          // [0,1]
	ExpectedGrowthPercent float64        `json:"expected_growth_percent"`
}

// OptionContract is one contract returned by OptionsDataProvider, scoped
// to PUTs in the short-term expiry window.
type OptionContract struct {
	Symbol            Symbol    `json:"symbol"`
	Strike            float64   `json:"strike"`
	Expiry            time.Time `json:"expiry"`
	DaysToExpiry      int       `json:"days_to_expiry"`
	Premium           float64   `json:"premium"`
	ImpliedVolatility float64   `json:"implied_volatility"` // annualised, e.g. 0.32 = 32%
	Volume            int64     `json:"volume"`
	OpenInterest      int64     `json:"open_interest"`
}

// Fundamentals is FundamentalsProvider's bulk-ingest record for one symbol.
type Fundamentals struct {
	Symbol            Symbol    `json:"symbol"`
	ReportDate        time.Time `json:"report_date"`
	PiotroskiFScore   int       `json:"piotroski_f_score"`
	AltmanZScore      float64   `json:"altman_z_score"`
	ROA               float64   `json:"roa"`
	DebtToEquity      float64   `json:"debt_to_equity"`
	CurrentRatio      float64   `json:"current_ratio"`
	MarketCapBillions float64   `json:"market_cap_billions"`
	TotalAssets       float64   `json:"total_assets"`
	TotalLiabilities  float64   `json:"total_liabilities"`
	TotalEquity       float64   `json:"total_equity"`
	Revenue           float64   `json:"revenue"`
	NetIncome         float64   `json:"net_income"`
	OperatingCashFlow float64   `json:"operating_cash_flow"`
	SharesOutstanding int64     `json:"shares_outstanding"`
}

// DividendInfo carries the next-ex-dividend facts used by DividendMomentum.
type DividendInfo struct {
	NextExDividendDate time.Time `json:"next_ex_dividend_date"`
	AnnualYieldPercent float64   `json:"annual_yield_percent"`
}

// FinancialHealthMetrics is a convenience read-out of the fundamentals
// layer for strategies that only need the two headline scalars.
type FinancialHealthMetrics struct {
	PiotroskiFScore int     `json:"piotroski_f_score"`
	AltmanZScore    float64 `json:"altman_z_score"`
}

// AggregatedMarketData is the per-symbol, per-scan bundle passed to every
// Strategy. In-memory only — never persisted.
type AggregatedMarketData struct {
	Symbol                 Symbol
	MarketData             *MarketData
	TrendAnalysis          *TrendAnalysis
	Options                []OptionContract
	DividendInfo           *DividendInfo
	FinancialHealthMetrics *FinancialHealthMetrics
}

// Recommendation is one strategy's scored PUT-selling candidate.
type Recommendation struct {
	Symbol                Symbol    `json:"symbol"`
	StrategyName          string    `json:"strategy_name"`
	CurrentPrice          float64   `json:"current_price"`
	StrikePrice           float64   `json:"strike_price"`
	Expiry                time.Time `json:"expiry"`
	DaysToExpiry          int       `json:"days_to_expiry"`
	Premium               float64   `json:"premium"`
	Breakeven             float64   `json:"breakeven"`
	Confidence            float64   `json:"confidence"`
	ExpectedGrowthPercent float64   `json:"expected_growth_percent"`
}

// ScanEventType tags the variant carried by a ScanEvent.
type ScanEventType string

const (
	EventScanStarted     ScanEventType = "scan_started"
	EventSymbolScanning  ScanEventType = "symbol_scanning"
	EventSymbolCompleted ScanEventType = "symbol_completed"
	EventSymbolError     ScanEventType = "symbol_error"
	EventScanCompleted   ScanEventType = "scan_completed"
)

// SymbolMetrics carries the two headline fundamentals metrics shown
// alongside per-symbol progress, when available.
type SymbolMetrics struct {
	PiotroskiFScore *int     `json:"piotroski_f_score,omitempty"`
	AltmanZScore    *float64 `json:"altman_z_score,omitempty"`
}

// ScanEvent is the tagged value streamed over the ProgressBus. Exactly one
// of the typed fields is meaningful per Type; JSON field names match the
// existing dashboard's wire format.
type ScanEvent struct {
	Type                   ScanEventType  `json:"type"`
	ScanLogID              string         `json:"scanLogId,omitempty"`
	TotalSymbols           int            `json:"totalSymbols,omitempty"`
	Timestamp              time.Time      `json:"timestamp"`
	Symbol                 Symbol         `json:"symbol,omitempty"`
	CurrentIndex           int            `json:"currentIndex,omitempty"`
	Status                 string         `json:"status,omitempty"`
	ErrorMessage           string         `json:"errorMessage,omitempty"`
	RecommendationsCount   int            `json:"recommendationsCount,omitempty"`
	ProgressPercent        float64        `json:"progressPercent,omitempty"`
	Metrics                *SymbolMetrics `json:"metrics,omitempty"`

	// ScanCompleted payload — the closed ScanLog, flattened.
	ID                        string     `json:"id,omitempty"`
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	CompletedAt               *time.Time `json:"completedAt,omitempty"`
	SymbolsScanned            int        `json:"symbolsScanned,omitempty"`
	RecommendationsGenerated  int        `json:"recommendationsGenerated,omitempty"`
	Duration                  string     `json:"duration,omitempty"`
}
