package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/modules/analysis"
	"github.com/aristath/portfolio-engine/internal/modules/history"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/scheduler"
	"github.com/aristath/portfolio-engine/internal/server"
	"github.com/aristath/portfolio-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.DevMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().Msg("Starting portfolio engine")

	// Initialize databases
	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history database")
	}
	defer historyDB.Close()

	analyticsDB, err := database.New(database.Config{
		Path:    cfg.AnalyticsDBPath(),
		Profile: database.ProfileCache,
		Name:    "analytics",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analytics database")
	}
	defer analyticsDB.Close()

	// Initialize modules
	historyRepo, err := history.NewRepository(historyDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history repository")
	}
	historySvc := history.NewService(historyRepo, log)

	analysisRepo, err := analysis.NewRepository(analyticsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analysis repository")
	}

	optimizerSvc := optimization.NewService(log)

	// Initialize scheduler and background jobs
	sched := scheduler.New(log)
	cleanup := analysis.NewCleanupJob(analysisRepo, cfg.ResultRetentionDays, log)
	if err := sched.AddJob("0 0 3 * * *", cleanup); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	maintenance := database.NewMaintenanceJob(log, historyDB, analyticsDB)
	if err := sched.AddJob("0 0 4 * * *", maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		Config:   cfg,
		Handlers: server.NewHandlers(historyRepo, historySvc, optimizerSvc, analysisRepo, log),
		System:   server.NewSystemHandlers(historyDB, analyticsDB, log),
		DevMode:  cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
