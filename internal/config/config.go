package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sms-relay-server/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"
)

// Config holds all configuration settings. Values come from the JSON config
// file, overridden by environment variables (optionally loaded from .env).
type Config struct {
	Server struct {
		Port int    `json:"port" env:"SERVER_PORT"`
		Host string `json:"host" env:"SERVER_HOST"`
	} `json:"server"`
	Database struct {
		DSN string `json:"dsn" env:"DATABASE_DSN"`
	} `json:"database"`
	Auth struct {
		JWTSecret   string        `json:"jwt_secret" env:"AUTH_JWT_SECRET"`
		TokenExpiry time.Duration `json:"token_expiry" env:"AUTH_TOKEN_EXPIRY"`
		// ClientKeyHash is the bcrypt hash of the relay client key the
		// modem host presents at login.
		ClientID      string `json:"client_id" env:"AUTH_CLIENT_ID"`
		ClientKeyHash string `json:"client_key_hash" env:"AUTH_CLIENT_KEY_HASH"`
	} `json:"auth"`
	Verification struct {
		// MarginMinutes is the tolerance window for the second matching
		// pass of a claim.
		MarginMinutes int `json:"margin_minutes" env:"VERIFICATION_MARGIN_MINUTES"`
		// MaxDailyFailures caps failed claims per user per calendar day.
		MaxDailyFailures int `json:"max_daily_failures" env:"VERIFICATION_MAX_DAILY_FAILURES"`
	} `json:"verification"`
	Logging struct {
		Level string `json:"level" env:"LOG_LEVEL"`
		Path  string `json:"path" env:"LOG_PATH"`
	} `json:"logging"`
}

// LoadConfig loads configuration from a JSON file and applies environment
// overrides.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("config path must be absolute")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config file error: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("config path is not a regular file")
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Warn("Failed to close config file", zap.Error(closeErr))
		}
	}()

	config := DefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	if err := ApplyEnv(context.Background(), config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv loads a .env file if present and overrides config fields from the
// environment.
func ApplyEnv(ctx context.Context, config *Config) error {
	_ = godotenv.Load()
	if err := envconfig.Process(ctx, config); err != nil {
		return fmt.Errorf("failed to process environment overrides: %w", err)
	}
	return nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 8080
	config.Server.Host = "localhost"
	config.Database.DSN = "file:sms.db?cache=shared&mode=rwc"
	config.Auth.JWTSecret = "change-me" // override in production
	config.Auth.TokenExpiry = 24 * time.Hour
	config.Auth.ClientID = "modem-relay"
	config.Verification.MarginMinutes = 3
	config.Verification.MaxDailyFailures = 3
	config.Logging.Level = "info"
	config.Logging.Path = "server.log"
	return config
}
