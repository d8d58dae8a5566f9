package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/weather-archive/internal/cache"
	"github.com/smukkama/weather-archive/internal/database"
	"github.com/smukkama/weather-archive/internal/maintenance"
	"github.com/smukkama/weather-archive/internal/observations"
	"github.com/smukkama/weather-archive/internal/registry"
	"github.com/smukkama/weather-archive/internal/server"
	"github.com/smukkama/weather-archive/internal/summary"
	"github.com/smukkama/weather-archive/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Weather Archive API...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Run migrations
	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create year partitions through next year, then keep them ahead of the
	// clock with the daily maintenance job
	partitions := maintenance.NewPartitionScheduler(db, cfg.Partitions.StartYear)
	if err := partitions.EnsureCurrent(context.Background()); err != nil {
		log.Fatalf("Failed to create year partitions: %v", err)
	}
	if err := partitions.Start(); err != nil {
		log.Fatalf("Failed to start partition maintenance: %v", err)
	}
	defer partitions.Stop()
	fmt.Println("Year partitions in place")

	// Refresh yesterday's daily summaries shortly after each UTC midnight
	summaries := summary.NewScheduler(db)
	if err := summaries.Start(); err != nil {
		log.Fatalf("Failed to start summary scheduler: %v", err)
	}
	defer summaries.Stop()

	// Location cache is optional: no Redis address, no cache
	var locationCache registry.Cache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		locationCache = cache.NewLocationCache(redisClient, cfg.Redis.CacheTTL)
		fmt.Println("Location cache enabled")
	}

	reg := registry.New(db, locationCache)
	engine := observations.NewEngine(db, reg)

	srv := server.New(db, reg, engine, cfg.Ingest.MaxBatchRows)

	go func() {
		if err := srv.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	fmt.Println("\n✓ Weather Archive API is running")
	fmt.Printf("✓ HTTP server listening on port %d\n", cfg.HTTP.Port)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	if err := srv.Shutdown(); err != nil {
		log.Printf("HTTP shutdown failed: %v", err)
	}
	fmt.Println("Weather Archive API stopped")
}
