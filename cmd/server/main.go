// Ballast is a multi-portfolio rebalancing service.
//
// Startup sequence:
//  1. Load configuration from environment (.env supported)
//  2. Initialize structured logging
//  3. Open and migrate the ledger and config databases
//  4. Replay the persisted ledger into memory
//  5. Wire risk controls, broker client, and the execution orchestrator
//  6. Register the rebalance job if a cron schedule is configured
//  7. Start the HTTP server and wait for a shutdown signal
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/ballast/internal/clients/broker"
	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/modules/ledger"
	ledgerhandlers "github.com/aristath/ballast/internal/modules/ledger/handlers"
	"github.com/aristath/ballast/internal/modules/risk"
	riskhandlers "github.com/aristath/ballast/internal/modules/risk/handlers"
	"github.com/aristath/ballast/internal/modules/targets"
	targetshandlers "github.com/aristath/ballast/internal/modules/targets/handlers"
	"github.com/aristath/ballast/internal/modules/trading"
	tradinghandlers "github.com/aristath/ballast/internal/modules/trading/handlers"
	"github.com/aristath/ballast/internal/ratelimit"
	"github.com/aristath/ballast/internal/scheduler"
	"github.com/aristath/ballast/internal/server"
	"github.com/aristath/ballast/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Ballast")

	// Databases
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	configDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open config database")
	}
	defer configDB.Close()

	for _, db := range []*database.DB{ledgerDB, configDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	// Ledger: replay the persisted entry log into memory
	ledgerRepo := ledger.NewRepository(ledgerDB.Conn(), log)
	entries, err := ledgerRepo.LoadAll()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load ledger entries")
	}

	ledg := ledger.New(ledgerRepo, log)
	ledg.Restore(entries)
	log.Info().Int("entries", len(entries)).Msg("Ledger restored")

	// Risk controls
	breaker := risk.NewCircuitBreaker(cfg.BreakerCooldown, log)
	guard := risk.NewGuard(ledg, breaker, cfg.MaxPosition, log)

	// Broker client behind the rate gate
	gate := ratelimit.NewGate(cfg.RateGateSize)
	brokerClient := broker.NewClient(cfg.BrokerBaseURL, cfg.BrokerAPIKey, gate, log)

	// Execution orchestrator
	tradingService := trading.NewService(brokerClient, ledg, guard, trading.Config{
		MaxNotional:   cfg.MaxNotional,
		DustThreshold: cfg.DustThreshold,
		MinPrice:      cfg.MinPrice,
	}, log)

	targetsRepo := targets.NewRepository(configDB.Conn(), log)

	// Scheduler
	sched := scheduler.New(log)
	rebalanceJob := scheduler.NewRebalanceJob(targetsRepo, tradingService, log)
	if cfg.RebalanceCron != "" {
		if err := sched.AddJob(cfg.RebalanceCron, rebalanceJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RebalanceCron).Msg("Invalid rebalance schedule")
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(server.Config{
		Log:             log,
		LedgerDB:        ledgerDB,
		ConfigDB:        configDB,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		LedgerHandlers:  ledgerhandlers.NewHandler(ledg, log),
		RiskHandlers:    riskhandlers.NewHandler(breaker, log),
		TradingHandlers: tradinghandlers.NewHandler(tradingService, log),
		TargetsHandlers: targetshandlers.NewHandler(targetsRepo, log),
		Scheduler:       sched,
		RebalanceJob:    rebalanceJob,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
