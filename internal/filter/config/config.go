package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BLOOMSYNC_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// CacheDir is the parent of the filter cache. Filters are stored in its
	// BloomFilter subdirectory, which is the only part a cache clear removes.
	CacheDir string `koanf:"cache_dir" validate:"required,abs_path"`

	// Sources is a filter definition file or a directory of them.
	Sources string `koanf:"sources" validate:"required,abs_path"`

	// Journal is the path of the sync journal database.
	Journal string `koanf:"journal" validate:"required,abs_path"`

	// DigestCacheSize bounds the verifier's digest cache. 0 disables it.
	DigestCacheSize int `koanf:"digest_cache_size" validate:"gte=0"`

	// FetchTimeout bounds each manifest or filter request. 0 disables it.
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gte=0"`

	AllowExpensive      bool `koanf:"allow_expensive"`
	AllowConstrained    bool `koanf:"allow_constrained"`
	WaitForConnectivity bool `koanf:"wait_for_connectivity"`

	// RetryFailed lets a query against a failed filter start a new sync.
	RetryFailed bool `koanf:"retry_failed"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                 "prod",
	LogLevel:            "info",
	CacheDir:            "/var/cache/bloomsync",
	Sources:             "/etc/bloomsync/filters.d/",
	Journal:             "/var/lib/bloomsync/journal.db",
	DigestCacheSize:     64,
	FetchTimeout:        60 * time.Second,
	AllowExpensive:      false,
	AllowConstrained:    false,
	WaitForConnectivity: true,
	RetryFailed:         false,
}

// validAbsPath reports whether the field is an absolute path.
func validAbsPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return p != "" && filepath.IsAbs(p)
}

// envLoader loads environment variables with the prefix "BLOOMSYNC_",
// lowercasing keys and trimming values. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "abs_path" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("abs_path", validAbsPath)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
