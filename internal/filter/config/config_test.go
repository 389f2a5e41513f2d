package config

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/var/cache/bloomsync", cfg.CacheDir)
	assert.Equal(t, "/etc/bloomsync/filters.d/", cfg.Sources)
	assert.Equal(t, "/var/lib/bloomsync/journal.db", cfg.Journal)
	assert.Equal(t, 64, cfg.DigestCacheSize)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.False(t, cfg.AllowExpensive)
	assert.False(t, cfg.AllowConstrained)
	assert.True(t, cfg.WaitForConnectivity)
	assert.False(t, cfg.RetryFailed)
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("BLOOMSYNC_ENV", "dev")
	t.Setenv("BLOOMSYNC_LOG_LEVEL", "debug")
	t.Setenv("BLOOMSYNC_CACHE_DIR", "/tmp/bloomsync/cache")
	t.Setenv("BLOOMSYNC_SOURCES", "/tmp/bloomsync/filters.yaml")
	t.Setenv("BLOOMSYNC_JOURNAL", "/tmp/bloomsync/journal.db")
	t.Setenv("BLOOMSYNC_DIGEST_CACHE_SIZE", "0")
	t.Setenv("BLOOMSYNC_FETCH_TIMEOUT", "15s")
	t.Setenv("BLOOMSYNC_ALLOW_EXPENSIVE", "true")
	t.Setenv("BLOOMSYNC_ALLOW_CONSTRAINED", "true")
	t.Setenv("BLOOMSYNC_WAIT_FOR_CONNECTIVITY", "false")
	t.Setenv("BLOOMSYNC_RETRY_FAILED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/bloomsync/cache", cfg.CacheDir)
	assert.Equal(t, "/tmp/bloomsync/filters.yaml", cfg.Sources)
	assert.Equal(t, "/tmp/bloomsync/journal.db", cfg.Journal)
	assert.Equal(t, 0, cfg.DigestCacheSize)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.True(t, cfg.AllowExpensive)
	assert.True(t, cfg.AllowConstrained)
	assert.False(t, cfg.WaitForConnectivity)
	assert.True(t, cfg.RetryFailed)
}

func TestLoad_ValueWhitespaceTrimmed(t *testing.T) {
	t.Setenv("BLOOMSYNC_LOG_LEVEL", "  warn ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid env", "BLOOMSYNC_ENV", "staging"},
		{"invalid log level", "BLOOMSYNC_LOG_LEVEL", "trace"},
		{"relative cache dir", "BLOOMSYNC_CACHE_DIR", "cache/filters"},
		{"relative sources", "BLOOMSYNC_SOURCES", "filters.d"},
		{"relative journal", "BLOOMSYNC_JOURNAL", "journal.db"},
		{"negative digest cache", "BLOOMSYNC_DIGEST_CACHE_SIZE", "-1"},
		{"negative timeout", "BLOOMSYNC_FETCH_TIMEOUT", "-5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestLoad_BadDurationFailsUnmarshal(t *testing.T) {
	t.Setenv("BLOOMSYNC_FETCH_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error unmarshalling config")
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading default config")
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { envLoader = orig }()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading env")
}

func TestLoad_RegisterValidationFails(t *testing.T) {
	orig := registerValidation
	registerValidation = func(v *validator.Validate) error { return errors.New("mocked validation error") }
	defer func() { registerValidation = orig }()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error registering validation")
}
