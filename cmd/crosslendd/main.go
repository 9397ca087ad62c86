package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crosslend/config"
	"crosslend/core/events"
	"crosslend/core/state"
	"crosslend/native/crosschain"
	"crosslend/native/lending"
	"crosslend/native/oracle"
	"crosslend/observability"
	"crosslend/observability/logging"
	"crosslend/rpc"
	"crosslend/storage"
)

const envName = "CROSSLEND_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("crosslendd", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := observability.NewMetricsEmitter(logEmitter{logger: logger})

	prices, err := buildOracle(cfg, logger)
	if err != nil {
		logger.Error("Failed to configure oracle", slog.Any("error", err))
		os.Exit(1)
	}

	engine := lending.NewEngine(manager, prices)
	engine.SetEmitter(emitter)
	engine.SetOracleTimeout(cfg.OracleTimeoutDuration())
	engine.SetUpkeepInterval(cfg.UpkeepIntervalDuration())

	transport := crosschain.NewLoopbackTransport(cfg.LocalDomain)
	reconciler := crosschain.NewReconciler(manager, engine, transport)
	reconciler.SetEmitter(emitter)
	reconciler.SetLogger(logger)
	transport.SetHandler(reconciler.HandleInbound)

	if err := seedState(cfg, engine, reconciler, logger); err != nil {
		logger.Error("Failed to seed state", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, reconciler, rpc.Options{
		Logger:             logger,
		JWTSecret:          cfg.ResolveJWTSecret(),
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runUpkeepLoop(ctx, engine, cfg.UpkeepIntervalDuration(), logger)

	go func() {
		logger.Info("rpc server listening", "address", cfg.RPCAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown failed", slog.Any("error", err))
	}
}

// buildOracle assembles the price feed stack from configuration: a manual
// feed seeded with configured prices, a CoinGecko feed when asset ids are
// mapped, both behind the priority aggregator.
func buildOracle(cfg *config.Config, logger *slog.Logger) (oracle.Oracle, error) {
	agg := oracle.NewAggregator(cfg.Oracle.Sources, cfg.OracleMaxAgeDuration())
	agg.SetTimeout(cfg.OracleFeedTimeoutDuration())

	for _, source := range cfg.Oracle.Sources {
		switch strings.ToLower(strings.TrimSpace(source)) {
		case "manual":
			manual := oracle.NewManualOracle()
			for asset, price := range cfg.Oracle.Prices {
				if err := manual.SetDecimal(asset, price, time.Now()); err != nil {
					return nil, fmt.Errorf("manual price %s: %w", asset, err)
				}
			}
			agg.Register("manual", manual)
		case "coingecko":
			client := &http.Client{Timeout: cfg.OracleFeedTimeoutDuration()}
			gecko := oracle.NewCoinGeckoOracle(client, cfg.Oracle.CoinGeckoURL, cfg.Oracle.AssetIDs)
			agg.Register("coingecko", gecko)
		default:
			logger.Warn("unknown oracle source skipped", "source", source)
		}
	}
	return agg, nil
}

// seedState creates configured pools and registers supported domains. Both
// operations tolerate state persisted by a previous run.
func seedState(cfg *config.Config, engine *lending.Engine, reconciler *crosschain.Reconciler, logger *slog.Logger) error {
	for _, pool := range cfg.Pools {
		err := engine.InitializePool(pool.Asset, pool.CollateralFactorBps)
		if errors.Is(err, lending.ErrAlreadyInitialized) {
			continue
		}
		if err != nil {
			return fmt.Errorf("initialize pool %s: %w", pool.Asset, err)
		}
		logger.Info("pool initialized", "asset", pool.Asset, "collateralFactorBps", pool.CollateralFactorBps)
	}
	for _, domain := range cfg.SupportedDomains {
		if err := reconciler.AddSupportedDomain(domain); err != nil {
			return fmt.Errorf("register domain %d: %w", domain, err)
		}
	}
	return nil
}

// runUpkeepLoop drives periodic rate refreshes. The engine enforces the
// interval itself, so a tick firing early is rejected rather than applied.
func runUpkeepLoop(ctx context.Context, engine *lending.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := engine.CheckUpkeep()
			if err != nil {
				logger.Error("upkeep check failed", slog.Any("error", err))
				continue
			}
			if !due {
				continue
			}
			if err := engine.PerformUpkeep(); err != nil && !errors.Is(err, lending.ErrUpkeepNotDue) {
				logger.Error("upkeep failed", slog.Any("error", err))
				continue
			}
			logger.Info("upkeep completed")
		}
	}
}

// logEmitter writes engine and reconciler events to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if l.logger == nil || evt == nil {
		return
	}
	attrs := make([]any, 0, 8)
	for key, value := range evt.Attributes() {
		attrs = append(attrs, slog.String(key, value))
	}
	l.logger.Info(evt.EventType(), attrs...)
}
