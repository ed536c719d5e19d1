package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/vire/internal/common"
	"github.com/bobmcallan/vire/internal/optionscan"
	"github.com/bobmcallan/vire/internal/optionscan/aggregator"
	"github.com/bobmcallan/vire/internal/optionscan/bus"
	"github.com/bobmcallan/vire/internal/optionscan/orchestrator"
	"github.com/bobmcallan/vire/internal/optionscan/providers"
	"github.com/bobmcallan/vire/internal/optionscan/store"
	"github.com/bobmcallan/vire/internal/optionscan/strategy"
	"github.com/bobmcallan/vire/internal/optionscan/tracker"
)

// App holds the initialized configuration, logger, and option-scan
// subsystem shared by cmd/vire-server.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	OptionScan    *orchestrator.Orchestrator
	OptionScanBus *bus.Bus
	StartupTime   time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// newOptionScan builds the option-scan subsystem: its own badgerhold store
// at config.Storage.DataPath (data/optionscan when unset; a relative path
// resolves against binDir), EODHD-backed provider adapters sharing the
// resolved API key, the strategy engine, and the orchestrator that ties
// them together. Returns nil, nil if no EODHD key is configured, since
// the scanner has nothing to scan without it, or if the store cannot be
// opened.
func newOptionScan(config *common.Config, eodhdKey string, logger *common.Logger, binDir string) (*orchestrator.Orchestrator, *bus.Bus) {
	if eodhdKey == "" {
		logger.Warn().Msg("Option scan disabled - no EODHD API key configured")
		return nil, nil
	}

	dataPath := config.Storage.DataPath
	if dataPath == "" {
		dataPath = "data/optionscan"
	}
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(binDir, dataPath)
	}

	st, err := store.New(logger, dataPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Option scan disabled - failed to open store")
		return nil, nil
	}

	rl := config.OptionScan.RateLimiting
	client := providers.NewClient(
		config.Clients.EODHD.BaseURL,
		eodhdKey,
		providers.WithLogger(logger),
		providers.WithRateLimit(config.Clients.EODHD.RateLimit),
		providers.WithAttemptTimeout(rl.GetAttemptTimeout()),
		providers.WithRetryPolicy(providers.Policy{
			MaxAttempts:    rl.GetMaxRetries(),
			InitialBackoff: rl.GetInitialRetryDelay(),
			MaxBackoff:     30 * time.Second,
			UseExponential: rl.UseExponentialBackoff,
		}),
	)

	marketProvider := providers.NewEODHDMarketDataProvider(client)
	optionsProvider := providers.NewEODHDOptionsDataProvider(client)
	fundamentalsProvider := providers.NewEODHDFundamentalsProvider(client)

	stratCfg := config.OptionScan.Strategy
	registry := strategy.NewRegistry(
		strategy.NewShortTermPut(stratCfg.MinExpiryDays, stratCfg.MaxExpiryDays),
		strategy.NewVolatilityCrush(stratCfg.MinExpiryDays, stratCfg.MaxExpiryDays),
		strategy.NewDividendMomentum(stratCfg.MinExpiryDays, stratCfg.MaxExpiryDays),
	)
	engine := strategy.NewEngine(registry, stratCfg.MinConfidence)

	minDays, maxDays := registry.CombinedExpiryWindow()
	agg := aggregator.New(marketProvider, optionsProvider, fundamentalsProvider, minDays, maxDays, aggregator.WithLogger(logger))

	trk := tracker.New()
	progressBus := bus.New(logger, func() (bool, optionscan.ScanEvent) {
		snap := trk.Snapshot()
		return snap.InProgress, optionscan.ScanEvent{
			Type:         optionscan.EventScanStarted,
			ScanLogID:    snap.ScanID,
			TotalSymbols: snap.Total,
			Symbol:       snap.CurrentSymbol,
		}
	})

	watchlist := make([]optionscan.Symbol, 0, len(config.OptionScan.Watchlist))
	for _, raw := range config.OptionScan.Watchlist {
		if sym := optionscan.NormalizeSymbol(raw); sym != "" {
			watchlist = append(watchlist, sym)
		}
	}

	var discovery providers.OptionsDiscoveryService
	disc := config.OptionScan.OptionsDiscovery
	if disc.Enabled {
		discovery = providers.NewEODHDOptionsDiscoveryService(client, optionsProvider, disc.Exchange, providers.DiscoveryConfig{
			MinOpenInterest:            disc.MinOpenInterest,
			MinVolume:                  disc.MinVolume,
			SampleOptionsPerUnderlying: disc.SampleOptionsPerUnderlying,
			MaxExpiryDays:              disc.MaxExpiryDays,
		})
	}

	hour, minute := config.OptionScan.GetScanTime()
	orch := orchestrator.New(
		orchestrator.Config{
			ScanHour:            hour,
			ScanMinute:          minute,
			Watchlist:           watchlist,
			DiscoveryEnabled:    disc.Enabled,
			FallbackToWatchlist: disc.FallbackToWatchlist,
			RetentionDays:       config.OptionScan.GetRetentionDays(),
		},
		st,
		discovery,
		agg,
		engine,
		trk,
		progressBus,
		logger,
	)

	return orch, progressBus
}

// NewApp loads configuration and logging, then wires up the option-scan
// subsystem. configPath may be empty, in which case the default
// resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("VIRE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "vire-service.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/vire-service.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Storage.DataPath != "" && !filepath.IsAbs(config.Storage.DataPath) {
		config.Storage.DataPath = filepath.Join(binDir, config.Storage.DataPath)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	eodhdKey := common.ResolveAPIKey("eodhd_api_key", config.Clients.EODHD.APIKey)
	if eodhdKey == "" {
		logger.Warn().Msg("EODHD API key not configured - option scan will be disabled")
	}

	optionScanOrchestrator, optionScanBus := newOptionScan(config, eodhdKey, logger, binDir)

	a := &App{
		Config:        config,
		Logger:        logger,
		OptionScan:    optionScanOrchestrator,
		OptionScanBus: optionScanBus,
		StartupTime:   startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App: stops the option-scan
// orchestrator, then closes its progress bus.
func (a *App) Close() {
	if a.OptionScan != nil {
		a.OptionScan.Stop(10 * time.Second)
		a.OptionScan = nil
	}
	if a.OptionScanBus != nil {
		a.OptionScanBus.Close()
		a.OptionScanBus = nil
	}
}

// StartOptionScan launches the daily option-scan orchestrator, if one was
// configured (requires an EODHD API key).
func (a *App) StartOptionScan() {
	if a.OptionScan != nil {
		a.OptionScan.Start()
	}
}
