// Package main is the entry point for the Quantfolio portfolio analytics
// service. It wires the configuration, databases, HTTP server, and the
// background scheduler, then blocks until a shutdown signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantfolio/quantfolio/internal/config"
	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/modules/calculations"
	"github.com/quantfolio/quantfolio/internal/modules/history"
	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	"github.com/quantfolio/quantfolio/internal/modules/risk"
	"github.com/quantfolio/quantfolio/internal/modules/runs"
	"github.com/quantfolio/quantfolio/internal/modules/walkforward"
	"github.com/quantfolio/quantfolio/internal/scheduler"
	"github.com/quantfolio/quantfolio/internal/server"
	"github.com/quantfolio/quantfolio/pkg/logger"
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

	log.Info().Msg("Starting Quantfolio")

	// history.db holds price time series; runs.db is the append-mostly
	// ledger of optimization results plus the calculation cache.
	historyDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("history"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	runsDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("runs"),
		Profile: database.ProfileLedger,
		Name:    "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open runs database")
	}
	defer runsDB.Close()

	for _, db := range []*database.DB{historyDB, runsDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("db", db.Name()).Msg("Failed to migrate database")
		}
	}

	srv := server.New(server.Config{
		Log:       log,
		HistoryDB: historyDB,
		RunsDB:    runsDB,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	sched := scheduler.New(log)

	historyRepo := history.NewRepository(historyDB.Conn(), log)
	runsRepo := runs.NewRepository(runsDB.Conn(), log)
	cache := calculations.NewCache(runsDB.Conn(), log)

	revalidate := scheduler.NewRevalidateJob(
		historyRepo,
		risk.NewEstimator(log),
		optimization.NewOptimizer(log),
		walkforward.NewValidator(log),
		runsRepo,
		cfg.DefaultLookback,
		walkforward.Thresholds{Low: cfg.DegradationLow, High: cfg.DegradationHigh},
		log,
	)
	if err := sched.AddJob(cfg.RevalidateCron, revalidate); err != nil {
		log.Fatal().Err(err).Msg("Failed to register revalidation job")
	}

	maintenance := scheduler.NewMaintenanceJob(
		runsRepo,
		cache,
		[]*database.DB{historyDB, runsDB},
		cfg.RetentionDays,
		log,
	)
	if err := sched.AddJob("0 30 4 * * *", maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	sched.Start()
	defer sched.Stop()

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

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
