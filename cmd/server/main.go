package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carvik/geodex/internal/api"
	"github.com/carvik/geodex/internal/config"
	"github.com/carvik/geodex/internal/database"
	"github.com/carvik/geodex/internal/github"
	"github.com/carvik/geodex/internal/jobs"
	"github.com/carvik/geodex/internal/storage"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Get underlying SQL database for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	records := storage.NewGormRecordStore(db)
	codes := storage.NewGormCodeRegistry(db)

	// GitHub client for the exchange endpoint and token verification
	var gh *github.Client
	if cfg.GitHub != nil && cfg.GitHub.Enabled {
		gh = github.NewClient(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret)
	} else {
		log.Println("GitHub OAuth is not configured; github login is disabled")
		gh = github.NewClient("", "")
	}

	// Start background cleanup of consumed authorization codes
	scheduler := jobs.NewScheduler(codes)
	scheduler.Start()
	defer scheduler.Stop()

	// Setup API router
	router := api.NewRouter(cfg, gh, records, codes)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
