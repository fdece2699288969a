package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/config"
	"github.com/farizadam/airport-app-sub000/internal/db"
	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/notify"
	"github.com/farizadam/airport-app-sub000/internal/payment"
	"github.com/farizadam/airport-app-sub000/internal/payout"
	"github.com/farizadam/airport-app-sub000/internal/reconcile"
	"github.com/farizadam/airport-app-sub000/internal/server"
	"github.com/farizadam/airport-app-sub000/internal/wallet"
)

// @title Airlift API
// @version 1.0
// @description API for the airport ride marketplace.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {

	logger.Init()
	logger.Info("Starting Airlift application")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	notifier := notify.New(cfg.RedisAddr, database)
	defer notifier.Close()
	logger.Info("Notification service initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Start(ctx)

	processor := payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey, cfg.PaymentTimeout)

	walletRepo := wallet.NewRepository(database)
	payoutRepo := payout.NewRepository(database)
	payoutSvc := payout.NewService(payoutRepo, walletRepo, processor, notifier)

	sweeper := reconcile.New(payoutRepo, payoutSvc, cfg.PayoutPendingThreshold, cfg.PayoutSettlementWindow)
	if err := sweeper.Start(cfg.ReconcileCron); err != nil {
		logger.Fatalf("Failed to start reconciliation sweep: %v", err)
	}

	srv := server.New(database, cfg, server.Deps{
		Notifier:  notifier,
		Processor: processor,
		Payouts:   payoutSvc,
		Sweeper:   sweeper,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	sweeper.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
