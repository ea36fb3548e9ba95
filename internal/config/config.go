package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultCheckInterval is how often the background sweep re-checks domains
// that are still waiting on DNS. A zero interval disables the sweep.
const DefaultCheckInterval = 5 * time.Minute

// Config holds application configuration for the management API.
type Config struct {
	DatabaseURL   string
	Port          string
	APIKeyHash    string // SHA-256 hex of the service API key
	CheckInterval time.Duration
}

// Load loads configuration from multiple sources with priority:
// 1. Command flags (passed as overrides)
// 2. Config file (~/.config/siteward/siteward.toml or ./siteward.toml)
// 3. Environment variables
func Load() (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, "", "", ""), nil
}

// LoadWithOverrides loads config and applies flag overrides
func LoadWithOverrides(databaseURL, port, checkInterval string) (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, databaseURL, port, checkInterval), nil
}

func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("siteward")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	if dir := Dir(); dir != "" {
		v.AddConfigPath(dir)
	}

	return v
}

// Dir resolves the XDG config directory for siteward.
// Manual implementation to support testing (xdg libraries cache at init).
func Dir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome == "" {
		return ""
	}
	return filepath.Join(configHome, "siteward")
}

func buildConfig(v *viper.Viper, overrideDatabaseURL, overridePort, overrideCheckInterval string) *Config {
	cfg := &Config{
		Port:          "3000",
		CheckInterval: DefaultCheckInterval,
	}

	// Apply config file values
	if v.IsSet("database_url") {
		cfg.DatabaseURL = v.GetString("database_url")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetString("port")
	}
	if v.IsSet("api_key_hash") {
		cfg.APIKeyHash = v.GetString("api_key_hash")
	}
	if v.IsSet("check_interval") {
		cfg.CheckInterval = parseInterval(v.GetString("check_interval"), cfg.CheckInterval)
	}

	// Environment fallback (only if not configured)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if !v.IsSet("port") {
		if envPort := os.Getenv("PORT"); envPort != "" {
			cfg.Port = envPort
		}
	}
	if cfg.APIKeyHash == "" {
		cfg.APIKeyHash = os.Getenv("API_KEY_HASH")
	}
	if !v.IsSet("check_interval") {
		if envInterval := os.Getenv("CHECK_INTERVAL"); envInterval != "" {
			cfg.CheckInterval = parseInterval(envInterval, cfg.CheckInterval)
		}
	}

	// Apply overrides (flags) last
	if overrideDatabaseURL != "" {
		cfg.DatabaseURL = overrideDatabaseURL
	}
	if overridePort != "" {
		cfg.Port = overridePort
	}
	if overrideCheckInterval != "" {
		cfg.CheckInterval = parseInterval(overrideCheckInterval, cfg.CheckInterval)
	}

	return cfg
}

// parseInterval accepts Go duration strings ("5m", "90s"). "0" disables the
// sweep. Unparseable values fall back so a typo cannot take the server down.
func parseInterval(raw string, fallback time.Duration) time.Duration {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return fallback
	}
	if cleaned == "0" {
		return 0
	}
	d, err := time.ParseDuration(cleaned)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// SaveAPIKeyHash persists the API key hash to the active config file,
// creating one under the XDG config directory when none exists yet.
// It returns the path written.
func SaveAPIKeyHash(hash string) (string, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	v.Set("api_key_hash", hash)

	path := v.ConfigFileUsed()
	if path == "" {
		dir := Dir()
		if dir == "" {
			return "", fmt.Errorf("cannot determine config directory")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create config directory: %w", err)
		}
		path = filepath.Join(dir, "siteward.toml")
	}

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
