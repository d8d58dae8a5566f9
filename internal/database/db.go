package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	// Read all migration files
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Filter and sort SQL files
	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	// Execute each migration
	for _, filename := range sqlFiles {
		fmt.Printf("Running migration: %s\n", filename)

		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// EnsureYearPartitions creates one observation partition per calendar year
// in [fromYear, toYear]. Creation is idempotent, so it is safe to call on
// every startup and from the maintenance scheduler.
func (db *DB) EnsureYearPartitions(ctx context.Context, fromYear, toYear int) error {
	for year := fromYear; year <= toYear; year++ {
		if err := db.ensureYearPartition(ctx, year); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) ensureYearPartition(ctx context.Context, year int) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS observations_y%d
		PARTITION OF observations
		FOR VALUES FROM ('%d-01-01 00:00:00+00') TO ('%d-01-01 00:00:00+00')
	`, year, year, year+1)

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create partition for year %d: %w", year, err)
	}
	return nil
}

// ensurePartitionsForYears creates partitions covering every distinct year
// touched by a batch before the write transaction opens. Partition DDL must
// not run inside the upsert transaction: CREATE TABLE ... PARTITION OF takes
// a lock on the parent that would serialize all concurrent ingestion.
func (db *DB) ensurePartitionsForYears(ctx context.Context, stamps []time.Time) error {
	years := make(map[int]struct{})
	for _, ts := range stamps {
		years[ts.UTC().Year()] = struct{}{}
	}
	for year := range years {
		if err := db.ensureYearPartition(ctx, year); err != nil {
			return err
		}
	}
	return nil
}
