package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Inference InferenceConfig
	Images    ImageConfig
	Ledger    DatabaseConfig
	LogLevel  string
}

// InferenceConfig holds model-server settings
type InferenceConfig struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	GRPCAddr  string
	BatchSize int
}

// ImageConfig holds settings for LayoutLMv2 image inputs
type ImageConfig struct {
	HeicConverter    string
	ArtifactCacheDir string
	BatchSize        int
}

// DatabaseConfig holds run-ledger database configuration. An empty DSN disables the ledger.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Inference: InferenceConfig{
			BaseURL:   getEnv("INFERENCE_URL", "http://localhost:8000"),
			Token:     getEnv("INFERENCE_TOKEN", ""),
			Timeout:   getEnvAsDuration("INFERENCE_TIMEOUT", 5*time.Minute),
			GRPCAddr:  getEnv("INFERENCE_GRPC_ADDR", ""),
			BatchSize: getEnvAsInt("LAYOUTLM_BATCH_SIZE", 8),
		},
		Images: ImageConfig{
			HeicConverter:    getEnv("HEIC_CONVERTER", "magick"),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
			BatchSize:        getEnvAsInt("LAYOUTLMV2_BATCH_SIZE", 4),
		},
		Ledger: DatabaseConfig{
			DSN:              getEnv("RUNS_DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 4),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("INFERENCE_URL", c.Inference.BaseURL, Required).
		Field("LAYOUTLM_BATCH_SIZE", c.Inference.BatchSize, PositiveInt).
		Field("LAYOUTLMV2_BATCH_SIZE", c.Images.BatchSize, PositiveInt).
		Field("LOG_LEVEL", c.LogLevel, OneOf("debug", "info", "warn", "error"))
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
