// Package orchestrator provides the daily scan scheduler plus the
// per-scan pipeline tying the store, providers, aggregator, strategy
// engine, tracker, and bus together.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/vire/internal/common"
	"github.com/bobmcallan/vire/internal/optionscan"
	"github.com/bobmcallan/vire/internal/optionscan/aggregator"
	"github.com/bobmcallan/vire/internal/optionscan/bus"
	"github.com/bobmcallan/vire/internal/optionscan/providers"
	"github.com/bobmcallan/vire/internal/optionscan/store"
	"github.com/bobmcallan/vire/internal/optionscan/strategy"
	"github.com/bobmcallan/vire/internal/optionscan/tracker"
	"github.com/google/uuid"
)

// schedulerCrashBackoff is how long the scheduler loop sleeps after an
// unexpected panic before resuming. Fixed rather than exponential, since
// a crashed scan is expected to be a rare, transient condition.
const schedulerCrashBackoff = 5 * time.Minute

// Store is the subset of store.Store the orchestrator depends on.
type Store interface {
	OpenScanLog(log optionscan.ScanLog) error
	CloseScanLog(id string, status optionscan.ScanStatus, symbolsScanned, recommendationsGenerated int, errMsg string) error
	UpsertMarketLayer(data store.MarketLayer) error
	DeleteStaleRecords(maxAge time.Duration) (int, error)
}

// Config bounds the orchestrator's scheduling and universe-discovery
// behaviour, mirroring common.OptionScanConfig without importing it
// directly so this package stays independently testable.
type Config struct {
	ScanHour            int
	ScanMinute          int
	Watchlist           []optionscan.Symbol
	DiscoveryEnabled    bool
	FallbackToWatchlist bool
	RetentionDays       int
}

// Orchestrator owns the one-scan-at-a-time invariant, the daily
// wall-clock scheduler, and the per-scan pipeline: injected collaborators,
// a context.CancelFunc, a sync.WaitGroup, Start/Stop safe to call repeatedly.
type Orchestrator struct {
	cfg        Config
	store      Store
	discovery  providers.OptionsDiscoveryService
	aggregator *aggregator.Aggregator
	engine     *strategy.Engine
	tracker    *tracker.Tracker
	bus        *bus.Bus
	logger     *common.Logger

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New builds an Orchestrator. discovery may be nil, in which case the
// configured watchlist is always used.
func New(
	cfg Config,
	st Store,
	discovery providers.OptionsDiscoveryService,
	agg *aggregator.Aggregator,
	engine *strategy.Engine,
	trk *tracker.Tracker,
	progressBus *bus.Bus,
	logger *common.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		store:      st,
		discovery:  discovery,
		aggregator: agg,
		engine:     engine,
		tracker:    trk,
		bus:        progressBus,
		logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (o *Orchestrator) safeGo(name string, fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in optionscan orchestrator goroutine")
			}
		}()
		fn()
	}()
}

// Start begins background scheduling. Idempotent — stops any existing
// loop first.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		o.stopLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running = true

	o.safeGo("scheduler", func() { o.schedulerLoop(ctx) })

	o.logger.Info().
		Int("scan_hour", o.cfg.ScanHour).
		Int("scan_minute", o.cfg.ScanMinute).
		Msg("Option scan orchestrator started")
}

// Stop cancels any in-flight scan cooperatively and waits up to deadline
// for the scheduler and any running pipeline to exit.
func (o *Orchestrator) Stop(deadline time.Duration) {
	o.mu.Lock()
	o.stopLocked()
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		o.logger.Warn().Dur("deadline", deadline).Msg("Option scan orchestrator stop deadline exceeded")
	}
}

func (o *Orchestrator) stopLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.running = false
}

// TriggerNow attempts to start a scan immediately. Returns
// optionscan.ErrScanInProgress if one is already running.
func (o *Orchestrator) TriggerNow() error {
	if o.tracker.InProgress() {
		return optionscan.ErrScanInProgress
	}
	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// schedulerLoop computes the next daily target, sleeps until it (or until
// woken by TriggerNow or cancelled), then runs one scan. Backs off 5
// minutes on an unexpected panic inside runScan, grounded on watchLoop's
// ticker-or-cancel select shape.
func (o *Orchestrator) schedulerLoop(ctx context.Context) {
	for {
		next := nextScanTime(time.Now(), o.cfg.ScanHour, o.cfg.ScanMinute)
		wait := time.Until(next)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-o.wake:
			timer.Stop()
		case <-timer.C:
		}

		if err := o.runScanRecovered(ctx); err != nil {
			o.logger.Error().Err(err).Msg("Option scan pipeline crashed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(schedulerCrashBackoff):
			}
		}
	}
}

// nextScanTime computes the next occurrence of hour:minute local time
// strictly after now, scheduling for tomorrow if today's time already
// passed.
func nextScanTime(now time.Time, hour, minute int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// runScanRecovered wraps runScan with panic recovery so a crash inside one
// scan triggers the scheduler backoff instead of killing the goroutine.
func (o *Orchestrator) runScanRecovered(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scan pipeline: %v\n%s", r, debug.Stack())
		}
	}()
	o.runScan(ctx)
	return nil
}

// runScan executes one full pipeline pass: resolve the universe, open a
// scan log, walk each symbol, then close the scan log. The guard
// (StartScan) is the sole authority on whether a scan proceeds; if one
// is already running this is a no-op.
func (o *Orchestrator) runScan(ctx context.Context) {
	universe, err := o.resolveUniverse(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("Option scan: failed to resolve universe, skipping this run")
		return
	}
	if len(universe) == 0 {
		o.logger.Warn().Msg("Option scan: empty universe, skipping this run")
		return
	}

	scanID := uuid.New().String()
	startedAt := time.Now()

	if !o.tracker.StartScan(scanID, len(universe)) {
		o.logger.Info().Msg("Option scan: scan already in progress, skipping scheduled run")
		return
	}
	defer o.tracker.FinishScan()

	if err := o.store.OpenScanLog(optionscan.ScanLog{
		ID:        scanID,
		StartedAt: startedAt,
		Status:    optionscan.ScanStatusRunning,
	}); err != nil {
		o.logger.Error().Err(err).Str("scan_id", scanID).Msg("Option scan: failed to open scan log")
		return
	}

	o.bus.Publish(optionscan.ScanEvent{
		Type:         optionscan.EventScanStarted,
		ScanLogID:    scanID,
		TotalSymbols: len(universe),
	})

	symbolsScanned, recommendationsGenerated, cancelled := o.scanSymbols(ctx, scanID, universe)

	status := optionscan.ScanStatusSucceeded
	errMsg := ""
	if cancelled {
		status = optionscan.ScanStatusFailed
		errMsg = "cancelled"
	}

	if err := o.store.CloseScanLog(scanID, status, symbolsScanned, recommendationsGenerated, errMsg); err != nil {
		o.logger.Error().Err(err).Str("scan_id", scanID).Msg("Option scan: failed to close scan log")
	}

	completedAt := time.Now()
	durationStr := completedAt.Sub(startedAt).String()
	o.bus.Publish(optionscan.ScanEvent{
		Type:                     optionscan.EventScanCompleted,
		ScanLogID:                scanID,
		ID:                       scanID,
		StartedAt:                &startedAt,
		CompletedAt:              &completedAt,
		SymbolsScanned:           symbolsScanned,
		RecommendationsGenerated: recommendationsGenerated,
		Status:                   string(status),
		ErrorMessage:             errMsg,
		Duration:                 durationStr,
	})

	if status == optionscan.ScanStatusSucceeded {
		if n, err := o.store.DeleteStaleRecords(time.Duration(o.cfg.RetentionDays) * 24 * time.Hour); err != nil {
			o.logger.Warn().Err(err).Msg("Option scan: retention sweep failed")
		} else if n > 0 {
			o.logger.Info().Int("deleted", n).Msg("Option scan: retention sweep removed stale records")
		}
	}
}

// scanSymbols runs the per-symbol loop: aggregate, evaluate, upsert,
// emit. Returns the count of symbols processed, recommendations
// generated, and whether the loop was cut short by cancellation.
func (o *Orchestrator) scanSymbols(ctx context.Context, scanID string, universe []optionscan.Symbol) (scanned, recommendations int, cancelled bool) {
	total := len(universe)

	for i, symbol := range universe {
		select {
		case <-ctx.Done():
			return scanned, recommendations, true
		default:
		}

		o.tracker.AdvanceSymbol(symbol)
		o.bus.Publish(optionscan.ScanEvent{
			Type:         optionscan.EventSymbolScanning,
			ScanLogID:    scanID,
			Symbol:       symbol,
			CurrentIndex: i,
			TotalSymbols: total,
		})

		recs, errMsg, metrics := o.processSymbol(ctx, symbol)
		scanned++
		o.tracker.CompleteSymbol()

		if errMsg != "" {
			o.bus.Publish(optionscan.ScanEvent{
				Type:         optionscan.EventSymbolError,
				ScanLogID:    scanID,
				Symbol:       symbol,
				CurrentIndex: i,
				TotalSymbols: total,
				ErrorMessage: errMsg,
			})
			continue
		}

		recommendations += len(recs)
		o.bus.Publish(optionscan.ScanEvent{
			Type:                 optionscan.EventSymbolCompleted,
			ScanLogID:            scanID,
			Symbol:               symbol,
			CurrentIndex:         i,
			TotalSymbols:         total,
			RecommendationsCount: len(recs),
			Metrics:              metrics,
		})
	}

	return scanned, recommendations, false
}

// processSymbol aggregates and evaluates one symbol, persists the top
// recommendation's market layer, and returns the recommendations plus an
// error message (empty on success). Provider and store failures are
// non-fatal for the scan; they surface on the symbol's own event only.
func (o *Orchestrator) processSymbol(ctx context.Context, symbol optionscan.Symbol) ([]optionscan.Recommendation, string, *optionscan.SymbolMetrics) {
	data, err := o.aggregator.Aggregate(ctx, symbol)
	if err != nil {
		return nil, err.Error(), nil
	}

	recs := o.engine.Evaluate(data)
	if len(recs) == 0 {
		return recs, "", financialHealthMetrics(data)
	}

	top := recs[0]
	layer := store.MarketLayer{
		Symbol:                symbol,
		CurrentPrice:          top.CurrentPrice,
		StrikePrice:           top.StrikePrice,
		Expiry:                top.Expiry,
		DaysToExpiry:          top.DaysToExpiry,
		Premium:               top.Premium,
		Breakeven:             top.Breakeven,
		Confidence:            top.Confidence,
		ExpectedGrowthPercent: top.ExpectedGrowthPercent,
		StrategyName:          top.StrategyName,
	}
	if err := o.store.UpsertMarketLayer(layer); err != nil {
		return recs, fmt.Errorf("%w: %v", optionscan.ErrStore, err).Error(), financialHealthMetrics(data)
	}

	return recs, "", financialHealthMetrics(data)
}

func financialHealthMetrics(data *optionscan.AggregatedMarketData) *optionscan.SymbolMetrics {
	if data == nil || data.FinancialHealthMetrics == nil {
		return nil
	}
	fscore := data.FinancialHealthMetrics.PiotroskiFScore
	zscore := data.FinancialHealthMetrics.AltmanZScore
	return &optionscan.SymbolMetrics{PiotroskiFScore: &fscore, AltmanZScore: &zscore}
}

// resolveUniverse determines the scan universe: discovery service first
// (if enabled), falling back to the configured watchlist on failure if
// fallbackToWatchlist is set, or always if discovery is disabled.
// Deduplicates and sorts lexicographically for deterministic progress
// ordering.
func (o *Orchestrator) resolveUniverse(ctx context.Context) ([]optionscan.Symbol, error) {
	var universe []optionscan.Symbol

	if o.cfg.DiscoveryEnabled && o.discovery != nil {
		discovered, err := o.discovery.DiscoverUnderlyings(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Option scan: discovery failed")
			if !o.cfg.FallbackToWatchlist {
				return nil, fmt.Errorf("discovery failed and watchlist fallback disabled: %w", err)
			}
			universe = o.cfg.Watchlist
		} else {
			universe = discovered
		}
	} else {
		universe = o.cfg.Watchlist
	}

	return dedupeSorted(universe), nil
}

func dedupeSorted(symbols []optionscan.Symbol) []optionscan.Symbol {
	seen := make(map[optionscan.Symbol]bool, len(symbols))
	out := make([]optionscan.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
