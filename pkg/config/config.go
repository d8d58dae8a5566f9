package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	HTTP       HTTPConfig
	Ingest     IngestConfig
	Provider   ProviderConfig
	Partitions PartitionConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	TopicObservations string
	NumPartitions     int
}

type HTTPConfig struct {
	Port int
}

type IngestConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxBatchRows  int
	ConsumerGroup string
}

type ProviderConfig struct {
	Enabled    bool
	GeocodeURL string
	ArchiveURL string
}

type PartitionConfig struct {
	StartYear int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "weather_user"),
			Password: getEnv("DB_PASSWORD", "weather_pass"),
			DBName:   getEnv("DB_NAME", "weather_archive"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:           strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicObservations: getEnv("KAFKA_TOPIC_OBSERVATIONS", "weather.observations"),
			NumPartitions:     getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
		},
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
		Ingest: IngestConfig{
			BatchSize:     getEnvAsInt("INGEST_BATCH_SIZE", 100),
			FlushInterval: getEnvAsDuration("INGEST_FLUSH_INTERVAL", 5*time.Second),
			MaxBatchRows:  getEnvAsInt("INGEST_MAX_BATCH_ROWS", 2000),
			ConsumerGroup: getEnv("INGEST_CONSUMER_GROUP", "observation-writer-group"),
		},
		Provider: ProviderConfig{
			Enabled:    getEnvAsBool("PROVIDER_ENABLED", false),
			GeocodeURL: getEnv("PROVIDER_GEOCODE_URL", ""),
			ArchiveURL: getEnv("PROVIDER_ARCHIVE_URL", ""),
		},
		Partitions: PartitionConfig{
			StartYear: getEnvAsInt("PARTITION_START_YEAR", 1980),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
