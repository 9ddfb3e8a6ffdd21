package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Signing   SigningConfig
	Storage   StorageConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Verbose  bool
}

// SigningConfig holds the firm-level signing policy defaults
type SigningConfig struct {
	RequireOtpDefault bool
	OtpTTL            time.Duration
	OtpMaxAttempts    int
	ConsentVersion    string
	DetectTimeout     time.Duration
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	BaseDir string
}

// IsProduction reports whether the server runs with production guarantees.
// Audit-write failures are fatal only in production.
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3310"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "lexsign"),
			Verbose:  getEnv("DB_VERBOSE", "false") == "true",
		},
		Signing: SigningConfig{
			RequireOtpDefault: getEnv("REQUIRE_OTP_DEFAULT", "true") == "true",
			OtpTTL:            getEnvDuration("OTP_TTL", 5*time.Minute),
			OtpMaxAttempts:    getEnvInt("OTP_MAX_ATTEMPTS", 5),
			ConsentVersion:    getEnv("CONSENT_VERSION", "v1"),
			DetectTimeout:     getEnvDuration("DETECT_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			BaseDir: getEnv("STORAGE_DIR", "./file_store"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
