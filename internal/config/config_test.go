package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENCRYPTION_KEY", "12345678901234567890123456789012")
	t.Setenv("ENCRYPTION_IV", "1234567890123456")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	req := require.New(t)
	setRequired(t)

	cfg, err := LoadFromEnv()
	req.NoError(err)

	def := DefaultConfig()
	req.Equal(def.Port, cfg.Port)
	req.Equal(def.AllowedOrigins, cfg.AllowedOrigins)
	req.Equal(def.HandshakeTimeout, cfg.HandshakeTimeout)
	req.Equal(def.MaxContentLength, cfg.MaxContentLength)
	req.Equal("secret", cfg.JWTSecret)
	req.Equal(rate.Limit(def.RateLimitAPI), cfg.APILimit())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	req := require.New(t)
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("HANDSHAKE_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_WS", "7")
	t.Setenv("MAX_CONTENT_LENGTH", "500")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	req.NoError(err)
	req.Equal("9090", cfg.Port)
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	req.Equal(2*time.Hour, cfg.TokenTTL)
	req.Equal(3*time.Second, cfg.HandshakeTimeout)
	req.Equal(rate.Limit(7), cfg.WSLimit())
	req.Equal(500, cfg.MaxContentLength)
	req.Equal("debug", cfg.LogLevel)
}

func TestLoadFromEnv_MissingSecrets(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "12345678901234567890123456789012")
	t.Setenv("ENCRYPTION_IV", "1234567890123456")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	req := require.New(t)
	cfg := DefaultConfig()
	cfg.EncryptionKey = "short"
	cfg.EncryptionIV = "short"
	cfg.RateLimitEvents = 0

	err := cfg.Validate()
	req.Error(err)
	req.Contains(err.Error(), "JWT_SECRET must be set")
	req.Contains(err.Error(), "ENCRYPTION_KEY must be exactly 32 bytes, got 5")
	req.Contains(err.Error(), "ENCRYPTION_IV must be exactly 16 bytes, got 5")
	req.Contains(err.Error(), "rate limits must be positive")
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"http://localhost:8080", []string{"http://localhost:8080"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{" , ,", []string{}},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, parseOrigins(tc.input), tc.input)
	}
}
