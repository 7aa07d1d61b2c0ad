package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	var cfg Config
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 3*time.Second, cfg.LookupTimeout)
	assert.Equal(t, "ed25519", cfg.SignatureScheme)
	assert.Equal(t, 32, cfg.MaxGroupSize)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.RequireVerified)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOOKUP_TIMEOUT", "250ms")
	t.Setenv("ALLOWED_ORIGINS", "https://0ep.net,http://localhost:3000")
	t.Setenv("REQUIRE_VERIFIED", "true")

	var cfg Config
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 250*time.Millisecond, cfg.LookupTimeout)
	assert.Equal(t, []string{"https://0ep.net", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.True(t, cfg.RequireVerified)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "restored-after-test")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	var cfg Config
	assert.Error(t, Load(&cfg))
}
