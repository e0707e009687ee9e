package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skagen/papertrader/internal/clients/yahoo"
	"github.com/skagen/papertrader/internal/config"
	"github.com/skagen/papertrader/internal/database"
	"github.com/skagen/papertrader/internal/marketdata"
	"github.com/skagen/papertrader/internal/modules/broker"
	"github.com/skagen/papertrader/internal/modules/ledger"
	"github.com/skagen/papertrader/internal/modules/prediction"
	"github.com/skagen/papertrader/internal/modules/pricing"
	"github.com/skagen/papertrader/internal/modules/trading"
	"github.com/skagen/papertrader/internal/modules/valuation"
	"github.com/skagen/papertrader/internal/scheduler"
	"github.com/skagen/papertrader/internal/server"
	"github.com/skagen/papertrader/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Paper Trader")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := ledger.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	// Market data: Yahoo chart API behind an in-process cache
	yc := yahoo.NewClient(log)
	provider := marketdata.NewCachingProvider(yc)

	// Ledger and trading wiring
	store := ledger.NewStore(db.Conn(), log)
	fees := pricing.NewFeeSchedule(cfg.Ruleset, pricing.NewCachedClassifier(yc), log)
	brk := broker.New(store, fees, cfg.Ruleset, log)
	val := valuation.New(store, provider, cfg.Ruleset, log)

	var predictor prediction.Predictor
	if cfg.PredictorServiceURL != "" {
		predictor = prediction.NewServiceClient(cfg.PredictorServiceURL, log)
	} else {
		predictor = prediction.NewRangePredictor(provider, log)
	}

	driver := trading.New(store, brk, val, predictor, provider, cfg.Tickers, log)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := sched.AddJob(cfg.TradingSchedule, trading.NewDailyJob(driver)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register trading job")
	}
	if err := sched.AddJob("0 0 */6 * * *", scheduler.NewLedgerAuditJob(db, store, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register audit job")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Store:   store,
		Driver:  driver,
		DevMode: cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
