package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keyauthd/keyauthd/internal/api"
	"github.com/keyauthd/keyauthd/internal/config"
	"github.com/keyauthd/keyauthd/internal/license"
	"github.com/keyauthd/keyauthd/internal/storage"
	"github.com/keyauthd/keyauthd/internal/storage/memory"
	storesql "github.com/keyauthd/keyauthd/internal/storage/sql"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll("data", 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// Initialize storage
	var store storage.Store
	switch cfg.Database.Driver {
	case "memory":
		log.Printf("Using in-memory storage: all keys are lost on restart")
		store = memory.New()
	default:
		store, err = storesql.New(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
	}
	defer store.Close()

	// Initialize the lifecycle engine
	svc := license.New(store, cfg.Keys.Mode)

	// Create router
	router := api.NewRouter(svc, cfg.Admin.Secret)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting keyauthd (%s mode) on http://%s", cfg.Keys.Mode, cfg.Server.Addr())

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
