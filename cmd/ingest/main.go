package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/weather-archive/internal/database"
	"github.com/smukkama/weather-archive/internal/maintenance"
	"github.com/smukkama/weather-archive/internal/observations"
	"github.com/smukkama/weather-archive/internal/queue"
	"github.com/smukkama/weather-archive/internal/registry"
	"github.com/smukkama/weather-archive/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Observation Ingest Service...")
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	partitions := maintenance.NewPartitionScheduler(db, cfg.Partitions.StartYear)
	if err := partitions.EnsureCurrent(context.Background()); err != nil {
		log.Fatalf("Failed to create year partitions: %v", err)
	}
	if err := partitions.Start(); err != nil {
		log.Fatalf("Failed to start partition maintenance: %v", err)
	}
	defer partitions.Stop()

	// Create the topic up front so first-run environments work
	if err := queue.CreateTopic(
		cfg.Kafka.Brokers,
		cfg.Kafka.TopicObservations,
		cfg.Kafka.NumPartitions,
		1, // replication factor
	); err != nil {
		fmt.Printf("Note: Topic creation failed (may already exist): %v\n", err)
	}

	reg := registry.New(db, nil)
	engine := observations.NewEngine(db, reg)

	// Create Kafka consumer
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicObservations, cfg.Ingest.ConsumerGroup)
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	batchWriter := queue.NewBatchWriter(consumer, engine, cfg.Ingest.BatchSize, cfg.Ingest.FlushInterval)
	ctx := context.Background()
	if err := batchWriter.Start(ctx); err != nil {
		log.Fatalf("Failed to start batch writer: %v", err)
	}
	fmt.Println("Batch writer started")

	// Print consumer stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := consumer.Stats()
			fmt.Printf("Consumer stats: Messages=%d, Bytes=%d, Errors=%d\n",
				stats.Messages, stats.Bytes, stats.Errors)
		}
	}()

	fmt.Println("\n✓ Observation Ingest Service is running")
	fmt.Println("✓ Consuming from Kafka and upserting into PostgreSQL")
	fmt.Printf("✓ Batch size: %d messages | Flush interval: %s\n",
		cfg.Ingest.BatchSize, cfg.Ingest.FlushInterval)
	fmt.Println("✓ Press Ctrl+C to stop")
	fmt.Println("\nWaiting for messages...")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	batchWriter.Stop()
	fmt.Println("Observation Ingest Service stopped")
}
