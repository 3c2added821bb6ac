package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	VersionStorePostgres = "postgres"
	VersionStoreMemory   = "memory"

	LogStoreMemory = "memory"
	LogStoreRedis  = "redis"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Rule definitions
	RulesDir string // Directory of rule documents; empty uses the embedded defaults

	// Version persistence
	VersionStore string // "postgres" or "memory"

	// Calculation log store
	LogStore    string // "memory" or "redis"
	RedisURL    string
	LogStoreTTL time.Duration

	// Override workflow
	OverrideMinReasonLength int

	// Batch design jobs
	WorkerConcurrency int
	JobTimeout        time.Duration

	// Storage Configuration (version and report archive)
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2Endpoint        string // Optional S3-compatible endpoint override

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		RulesDir: getEnv("RULES_DIR", ""),

		VersionStore: getEnv("VERSION_STORE", VersionStorePostgres),

		LogStore:    getEnv("LOG_STORE", LogStoreMemory),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		LogStoreTTL: getEnvDuration("LOG_STORE_TTL", 24*time.Hour),

		OverrideMinReasonLength: getEnvInt("OVERRIDE_MIN_REASON_LENGTH", 50),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		JobTimeout:        getEnvDuration("JOB_TIMEOUT", 2*time.Minute),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2Endpoint:        getEnv("R2_ENDPOINT", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")

	switch cfg.VersionStore {
	case VersionStorePostgres:
		// Required
		if cfg.DatabaseUrl == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when VERSION_STORE is 'postgres'")
		}
	case VersionStoreMemory:
	default:
		return nil, fmt.Errorf("VERSION_STORE must be either 'postgres' or 'memory', got: %s", cfg.VersionStore)
	}

	switch cfg.LogStore {
	case LogStoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when LOG_STORE is 'redis'")
		}
	case LogStoreMemory:
	default:
		return nil, fmt.Errorf("LOG_STORE must be either 'memory' or 'redis', got: %s", cfg.LogStore)
	}

	if cfg.OverrideMinReasonLength < 50 {
		return nil, fmt.Errorf("OVERRIDE_MIN_REASON_LENGTH must be at least 50, got: %d", cfg.OverrideMinReasonLength)
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" && cfg.R2Endpoint == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID or R2_ENDPOINT is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
