package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	LogLevel    string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Generation configuration
	ExportDir      string
	MaxBatchSize   int
	BatchUnitDelay time.Duration

	// Scan configuration
	ScanDebounce      time.Duration
	ScanCooldown      time.Duration
	ScanFrameInterval time.Duration
	ScanHistorySize   int
	ScanRateLimit     int
	CameraOpenTimeout time.Duration

	// Store configuration
	DeleteChunkSize int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

// LoadConfig reads the environment, after merging a local .env file when one exists.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "qrticket-server"),

		// Generation
		ExportDir:      getEnv("EXPORT_DIR", "pb_exports"),
		MaxBatchSize:   getEnvAsInt("MAX_BATCH_SIZE", 500),
		BatchUnitDelay: getEnvAsDuration("BATCH_UNIT_DELAY", "150ms"),

		// Scan
		ScanDebounce:      getEnvAsDuration("SCAN_DEBOUNCE", "300ms"),
		ScanCooldown:      getEnvAsDuration("SCAN_COOLDOWN", "2s"),
		ScanFrameInterval: getEnvAsDuration("SCAN_FRAME_INTERVAL", "16ms"),
		ScanHistorySize:   getEnvAsInt("SCAN_HISTORY_SIZE", 10),
		ScanRateLimit:     getEnvAsInt("SCAN_RATE_LIMIT", 120),
		CameraOpenTimeout: getEnvAsDuration("CAMERA_OPEN_TIMEOUT", "10s"),

		// Store
		DeleteChunkSize: getEnvAsInt("DELETE_CHUNK_SIZE", 100),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

// SlogLevel maps LogLevel onto a slog level, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
