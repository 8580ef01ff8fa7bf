package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/mmuslimabdulj/goat-whisper/internal/encryption"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port string `env:"PORT"`

	// Security
	AllowedOriginsRaw string `env:"ALLOWED_ORIGINS"`
	AllowedOrigins    []string

	// Auth
	JWTSecret string        `env:"JWT_SECRET,required=true"`
	JWTIssuer string        `env:"JWT_ISSUER"`
	TokenTTL  time.Duration `env:"TOKEN_TTL"`

	// Encryption at rest
	EncryptionKey string `env:"ENCRYPTION_KEY,required=true"`
	EncryptionIV  string `env:"ENCRYPTION_IV,required=true"`

	// Storage
	BadgerPath      string        `env:"BADGER_PATH"`
	DatabasePath    string        `env:"DATABASE_PATH"`
	AccountCacheTTL time.Duration `env:"ACCOUNT_CACHE_TTL"`

	// Rate Limiting
	RateLimitAPI    int `env:"RATE_LIMIT_API"`
	RateLimitWS     int `env:"RATE_LIMIT_WS"`
	RateLimitEvents int `env:"RATE_LIMIT_EVENTS"`

	// Logging
	LogLevel string `env:"LOG_LEVEL"`

	// WebSocket
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:             "8080",
		AllowedOrigins:   []string{"http://localhost:8080", "http://localhost:3000"},
		JWTIssuer:        "goat-whisper",
		TokenTTL:         domain.TokenTTL,
		BadgerPath:       "./data/messages",
		DatabasePath:     "./data/accounts.db",
		AccountCacheTTL:  domain.AccountCacheTTL,
		RateLimitAPI:     domain.DefaultRateLimitAPI,
		RateLimitWS:      domain.DefaultRateLimitWS,
		RateLimitEvents:  domain.DefaultRateLimitEvents,
		LogLevel:         "info", // Options: debug, info, warn, error, silent
		MaxMessageSize:   domain.MaxMessageSize,
		MaxContentLength: domain.MaxContentLength,
		HandshakeTimeout: domain.HandshakeTimeout,
		SendBufferSize:   domain.SendBufferSize,
	}
}

// LoadFromEnv loads configuration from environment variables over the
// defaults. Unset variables keep their default.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.AllowedOriginsRaw != "" {
		cfg.AllowedOrigins = parseOrigins(cfg.AllowedOriginsRaw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var err error
	if c.JWTSecret == "" {
		err = multierr.Append(err, errors.New("JWT_SECRET must be set"))
	}
	if len(c.EncryptionKey) != encryption.KeySize {
		err = multierr.Append(err, fmt.Errorf("ENCRYPTION_KEY must be exactly %d bytes, got %d", encryption.KeySize, len(c.EncryptionKey)))
	}
	if len(c.EncryptionIV) != encryption.IVSize {
		err = multierr.Append(err, fmt.Errorf("ENCRYPTION_IV must be exactly %d bytes, got %d", encryption.IVSize, len(c.EncryptionIV)))
	}
	if c.RateLimitAPI <= 0 || c.RateLimitWS <= 0 || c.RateLimitEvents <= 0 {
		err = multierr.Append(err, errors.New("rate limits must be positive"))
	}
	if c.MaxMessageSize <= 0 || c.MaxContentLength <= 0 || c.SendBufferSize <= 0 {
		err = multierr.Append(err, errors.New("websocket limits must be positive"))
	}
	if c.HandshakeTimeout <= 0 || c.TokenTTL <= 0 {
		err = multierr.Append(err, errors.New("durations must be positive"))
	}
	return err
}

// APILimit is the per-IP request rate for plain HTTP endpoints
func (c *Config) APILimit() rate.Limit { return rate.Limit(c.RateLimitAPI) }

// WSLimit is the per-IP websocket upgrade rate
func (c *Config) WSLimit() rate.Limit { return rate.Limit(c.RateLimitWS) }

// parseOrigins parses comma-separated origins
func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
