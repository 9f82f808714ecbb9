package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("TRANSITION_POLICY", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.GoEnv)
	assert.Equal(t, TransitionPolicyStrict, cfg.TransitionPolicy)
	assert.True(t, cfg.IsStrictTransitions())
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.CORSAllowedOrigins, "CORS stays off unless origins are configured")
	assert.True(t, cfg.IsTest())
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://dispatch.example.com,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "https://dispatch.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadPermissivePolicy(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("TRANSITION_POLICY", "Permissive")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsStrictTransitions())
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("TRANSITION_POLICY", "chaotic")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadCacheTTL(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("CACHE_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRequiresDatabaseURLInProduction(t *testing.T) {
	cfg := &Config{GoEnv: "production", TransitionPolicy: TransitionPolicyStrict, CacheTTL: time.Minute}
	assert.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgresql://localhost/delivery_tracking"
	assert.NoError(t, cfg.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, splitList(" http://a.test, ,http://b.test "))
	assert.Nil(t, splitList(""))
}

func TestGetSetConfig(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	cfg := &Config{Port: "9090"}
	SetConfig(cfg)
	assert.Same(t, cfg, GetConfig())
}
