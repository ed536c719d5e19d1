// Package store provides the unified, single-record-per-symbol StockData
// store, with independent upsert layers for the fundamentals feed and the
// market/options feed, plus time-based retention.
package store

import (
	"fmt"
	"os"
	"time"

	"github.com/bobmcallan/vire/internal/common"
	"github.com/bobmcallan/vire/internal/optionscan"
	"github.com/timshannon/badgerhold/v4"
)

// bucketStockData is the badgerhold type name used to scope keys; kept
// distinct from ScanLog's bucket via badgerhold's type-based namespacing
// (each Go type occupies its own key space automatically).
type bucketStockData = optionscan.StockData

// Store persists StockData and ScanLog records in one badgerhold database,
// using one handle with each record type occupying its own key space via
// badgerhold's type-based namespacing.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// New opens (or creates) a badgerhold database at path.
func New(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("optionscan/store: create directory %s: %w", path, err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil

	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("optionscan/store: open badger database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("optionscan store opened")

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetBySymbol retrieves the record for symbol, or (nil, nil) if absent.
func (s *Store) GetBySymbol(symbol optionscan.Symbol) (*optionscan.StockData, error) {
	var rec bucketStockData
	err := s.db.Get(string(symbol), &rec)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("optionscan/store: get %s: %w", symbol, err)
	}
	return &rec, nil
}

// GetAll returns every stored record.
func (s *Store) GetAll() ([]*optionscan.StockData, error) {
	var rows []bucketStockData
	if err := s.db.Find(&rows, nil); err != nil {
		return nil, fmt.Errorf("optionscan/store: get all: %w", err)
	}
	out := make([]*optionscan.StockData, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// GetHealthySymbols returns rows whose latest fundamentals have
// PiotroskiFScore >= minFScore.
func (s *Store) GetHealthySymbols(minFScore int) ([]*optionscan.StockData, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	var out []*optionscan.StockData
	for _, rec := range all {
		if rec.HasFundamentals() && rec.PiotroskiFScore >= minFScore {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetWithMarketData returns rows that have a market/options layer present
// (Confidence set via a successful scan write).
func (s *Store) GetWithMarketData() ([]*optionscan.StockData, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	var out []*optionscan.StockData
	for _, rec := range all {
		if rec.HasMarketLayer() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpsertFundamentalsLayer writes only the fundamentals fields of data,
// preserving the market/options layer and bumping ModificationTime. The
// read-modify-write is executed inside one badger transaction so a
// concurrent UpsertMarketLayer for the same symbol cannot interleave.
func (s *Store) UpsertFundamentalsLayer(data optionscan.Fundamentals) error {
	now := time.Now()
	return s.withTxn(data.Symbol, now, func(rec *optionscan.StockData) {
		rec.ReportDate = data.ReportDate
		rec.PiotroskiFScore = data.PiotroskiFScore
		rec.AltmanZScore = data.AltmanZScore
		rec.ROA = data.ROA
		rec.DebtToEquity = data.DebtToEquity
		rec.CurrentRatio = data.CurrentRatio
		rec.MarketCapBillions = data.MarketCapBillions
		rec.TotalAssets = data.TotalAssets
		rec.TotalLiabilities = data.TotalLiabilities
		rec.TotalEquity = data.TotalEquity
		rec.Revenue = data.Revenue
		rec.NetIncome = data.NetIncome
		rec.OperatingCashFlow = data.OperatingCashFlow
		rec.SharesOutstanding = data.SharesOutstanding
		rec.FundamentalsUpdatedAt = now
	})
}

// MarketLayer is the set of market/options fields written by a single
// top recommendation upsert.
type MarketLayer struct {
	Symbol                optionscan.Symbol
	CurrentPrice          float64
	StrikePrice           float64
	Expiry                time.Time
	DaysToExpiry          int
	Premium               float64
	Breakeven             float64
	Confidence            float64
	ExpectedGrowthPercent float64
	StrategyName          string
	ExchangeSymbol        string
	OptionPrice           float64
	Volume                int64
	OpenInterest          int64
}

// UpsertMarketLayer writes only the market/options fields, preserving the
// fundamentals layer and bumping ModificationTime.
func (s *Store) UpsertMarketLayer(data MarketLayer) error {
	now := time.Now()
	return s.withTxn(data.Symbol, now, func(rec *optionscan.StockData) {
		rec.CurrentPrice = data.CurrentPrice
		rec.StrikePrice = data.StrikePrice
		rec.Expiry = data.Expiry
		rec.DaysToExpiry = data.DaysToExpiry
		rec.Premium = data.Premium
		rec.Breakeven = data.Breakeven
		rec.Confidence = data.Confidence
		rec.ExpectedGrowthPercent = data.ExpectedGrowthPercent
		rec.StrategyName = data.StrategyName
		rec.ExchangeSymbol = data.ExchangeSymbol
		rec.OptionPrice = data.OptionPrice
		rec.Volume = data.Volume
		rec.OpenInterest = data.OpenInterest
		rec.MarketUpdatedAt = now
	})
}

// withTxn performs a read-modify-write of the record for symbol inside one
// badger write transaction, then sets ModificationTime to the later of the
// two layer timestamps.
func (s *Store) withTxn(symbol optionscan.Symbol, now time.Time, mutate func(*optionscan.StockData)) error {
	if symbol == "" {
		return fmt.Errorf("optionscan/store: empty symbol")
	}

	txn := s.db.Badger().NewTransaction(true)
	defer txn.Discard()

	var rec bucketStockData
	err := s.db.TxGet(txn, string(symbol), &rec)
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("optionscan/store: read %s: %w", symbol, err)
	}
	if err == badgerhold.ErrNotFound {
		rec = optionscan.StockData{Symbol: symbol}
	}

	mutate(&rec)

	if rec.FundamentalsUpdatedAt.After(rec.MarketUpdatedAt) {
		rec.ModificationTime = rec.FundamentalsUpdatedAt
	} else {
		rec.ModificationTime = rec.MarketUpdatedAt
	}
	if rec.ModificationTime.IsZero() {
		rec.ModificationTime = now
	}

	if err := s.db.TxUpsert(txn, string(symbol), &rec); err != nil {
		return fmt.Errorf("optionscan/store: upsert %s: %w", symbol, err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("optionscan/store: commit %s: %w", symbol, err)
	}
	return nil
}

// BulkUpsertFundamentals applies UpsertFundamentalsLayer to every row,
// walking the slice in chunks of 200. Each row is written in its own
// badger transaction, so the call is not atomic: an error stops the loop
// and leaves the rows before it written.
func (s *Store) BulkUpsertFundamentals(rows []optionscan.Fundamentals) error {
	const chunkSize = 200
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, row := range rows[start:end] {
			if err := s.UpsertFundamentalsLayer(row); err != nil {
				return fmt.Errorf("optionscan/store: bulk upsert %s: %w", row.Symbol, err)
			}
		}
	}
	return nil
}

// DeleteStaleRecords removes records whose ModificationTime is older than
// maxAge. Returns the number of rows deleted.
func (s *Store) DeleteStaleRecords(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	query := badgerhold.Where("ModificationTime").Lt(cutoff)

	var stale []bucketStockData
	if err := s.db.Find(&stale, query); err != nil {
		return 0, fmt.Errorf("optionscan/store: find stale: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.db.DeleteMatching(&bucketStockData{}, query); err != nil {
		return 0, fmt.Errorf("optionscan/store: delete stale: %w", err)
	}
	return len(stale), nil
}

// OpenScanLog inserts a new ScanLog row in ScanStatusRunning.
func (s *Store) OpenScanLog(log optionscan.ScanLog) error {
	log.Status = optionscan.ScanStatusRunning
	if err := s.db.Insert(log.ID, &log); err != nil {
		return fmt.Errorf("optionscan/store: open scan log %s: %w", log.ID, err)
	}
	return nil
}

// CloseScanLog finalizes a ScanLog with a terminal status.
func (s *Store) CloseScanLog(id string, status optionscan.ScanStatus, symbolsScanned, recommendationsGenerated int, errMsg string) error {
	var log optionscan.ScanLog
	if err := s.db.Get(id, &log); err != nil {
		return fmt.Errorf("optionscan/store: read scan log %s: %w", id, err)
	}

	now := time.Now()
	log.CompletedAt = &now
	log.Status = status
	log.SymbolsScanned = symbolsScanned
	log.RecommendationsGenerated = recommendationsGenerated
	log.ErrorMessage = errMsg

	if err := s.db.Update(id, &log); err != nil {
		return fmt.Errorf("optionscan/store: close scan log %s: %w", id, err)
	}
	return nil
}

// GetScanLog retrieves one ScanLog by ID, or (nil, nil) if absent.
func (s *Store) GetScanLog(id string) (*optionscan.ScanLog, error) {
	var log optionscan.ScanLog
	err := s.db.Get(id, &log)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("optionscan/store: get scan log %s: %w", id, err)
	}
	return &log, nil
}

// RecentScanLogs returns up to limit ScanLog rows, most recently started
// first.
func (s *Store) RecentScanLogs(limit int) ([]*optionscan.ScanLog, error) {
	var rows []optionscan.ScanLog
	query := badgerhold.Where("StartedAt").Ge(time.Time{}).SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Find(&rows, query); err != nil {
		return nil, fmt.Errorf("optionscan/store: recent scan logs: %w", err)
	}
	out := make([]*optionscan.ScanLog, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}
