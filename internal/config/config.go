package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database
	DatabaseURL    string
	StoreDriver    string
	MigrateOnStart bool
	MigrationsDir  string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Matchmaking
	QueueWaitSeconds int
	JoinMaxAttempts  int
	MinStakeAmount   int64
	ProblemCount     int

	// Timeout reaper
	ReaperIntervalSeconds int
	ReaperBatchSize       int
	ReaperConcurrency     int

	// Security
	JWTSecret   string
	AdminAPIKey string

	// Audit archive (Cloudflare R2 or any S3 endpoint)
	ArchiveEnabled   bool
	ArchiveAccountID string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveEndpoint  string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/duel?sslmode=disable"),
		StoreDriver:    getEnv("STORE_DRIVER", "postgres"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),
		MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Matchmaking
		QueueWaitSeconds: getEnvInt("QUEUE_WAIT_SECONDS", 180),
		JoinMaxAttempts:  getEnvInt("JOIN_MAX_ATTEMPTS", 5),
		MinStakeAmount:   int64(getEnvInt("MIN_STAKE_AMOUNT", 100)),
		ProblemCount:     getEnvInt("PROBLEM_COUNT", 10),

		// Timeout reaper
		ReaperIntervalSeconds: getEnvInt("REAPER_INTERVAL_SECONDS", 5),
		ReaperBatchSize:       getEnvInt("REAPER_BATCH_SIZE", 100),
		ReaperConcurrency:     getEnvInt("REAPER_CONCURRENCY", 4),

		// Security
		JWTSecret:   getEnv("JWT_SECRET", "change-me-in-production"),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		// Audit archive
		ArchiveEnabled:   getEnvBool("ARCHIVE_ENABLED", false),
		ArchiveAccountID: getEnv("ARCHIVE_ACCOUNT_ID", ""),
		ArchiveAccessKey: getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", "duel-match-archive"),
		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
	}
}

// QueueWait is how long a join waits for a live opponent.
func (c *Config) QueueWait() time.Duration {
	return time.Duration(c.QueueWaitSeconds) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
