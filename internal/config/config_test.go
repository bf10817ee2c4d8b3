package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestFromLookupOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"PORT":                 "9000",
		"JWT_SECRET":           "a-very-long-production-secret",
		"TOKEN_TTL":            "2h",
		"REDIS_URL":            "redis://localhost:6379/0",
		"CORS_ALLOWED_ORIGINS": "https://app.example.com, https://admin.example.com,",
		"RATE_LIMIT_RPS":       "2.5",
		"RATE_LIMIT_BURST":     "5",
		"PAYMENT_GATEWAY_URL":  "https://pay.example.com/charge",
	}), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, "https://pay.example.com/charge", cfg.PaymentGatewayURL)
}

func TestFromLookupRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad ttl":      {"TOKEN_TTL": "forever"},
		"zero ttl":     {"TOKEN_TTL": "0s"},
		"bad rps":      {"RATE_LIMIT_RPS": "fast"},
		"zero burst":   {"RATE_LIMIT_BURST": "0"},
		"short secret": {"JWT_SECRET": "short"},
		"port not num": {"PORT": "http"},
		"bad gateway":  {"PAYMENT_GATEWAY_URL": "not a url"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(env), slog.Default())
			assert.Error(t, err)
		})
	}
}
