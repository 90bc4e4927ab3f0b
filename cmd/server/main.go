package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/api"
	"github.com/collectdex/mfc-sync/internal/config"
	"github.com/collectdex/mfc-sync/internal/db"
	"github.com/collectdex/mfc-sync/internal/push"
	"github.com/collectdex/mfc-sync/internal/sync"
	"github.com/collectdex/mfc-sync/internal/worker"

	_ "github.com/collectdex/mfc-sync/docs"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.DBConnectionString == "" || cfg.WebhookSecret == "" || cfg.AuthSecret == "" {
		logger.Fatal("Missing required configuration (DB_CONNECTION_STRING, WEBHOOK_SECRET and AUTH_SECRET must be set)")
	}

	// Initialize database
	store, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, func() error {
		return store.Migrate()
	}); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	// Initialize services
	hub := push.NewLocalHub(logger)
	workerClient := worker.NewHTTPClient(cfg.WorkerBaseURL, cfg.WebhookSecret,
		cfg.Sync.WorkerTimeout, cfg.Sync.WorkerMaxRetries, logger)
	supervisor := sync.NewSupervisor(store, hub, cfg.Sync, logger)
	enricher := sync.NewEnricher(store, logger)
	webhookService := sync.NewWebhookService(store, hub, enricher, logger)
	syncService := sync.NewService(store, hub, workerClient, supervisor, cfg.Sync,
		cfg.PublicBaseURL+"/api/v1/webhooks/sync", cfg.WebhookSecret, logger)

	handler := api.NewHandler(syncService, webhookService, hub, cfg.Sync, logger)
	router := api.SetupRouter(handler, cfg.AuthSecret, cfg.WebhookSecret)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Start the stale job supervisor
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go supervisor.Run(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	// Let in-flight enrichments land before closing the store
	enricher.Wait()
	if err := store.Close(); err != nil {
		logger.Errorf("Failed to close database: %v", err)
	}

	logger.Info("Server exited properly")
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
