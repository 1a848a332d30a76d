package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MOVIEFLIX_TMDB_API_KEY
const EnvPrefix = "MOVIEFLIX"

// Identity provider names
const (
	ProviderLocal    = "local"
	ProviderFirebase = "firebase"
)

// Load loads the configuration from file and environment. Without an explicit
// path a missing config file is not an error, so deployments can be configured
// from the environment alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".movieflix"))
		}

		// Check /etc
		v.AddConfigPath("/etc/movieflix/")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Every key gets a default so
// that AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// TMDB defaults
	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.image_base_url", "https://image.tmdb.org/t/p/")
	v.SetDefault("tmdb.language", "en-US")
	v.SetDefault("tmdb.timeout", 15*time.Second)

	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.session_ttl", 24*time.Hour)
	v.SetDefault("server.max_sessions", 1000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.auth_rate_limit", 1.0)
	v.SetDefault("server.auth_rate_burst", 5)
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.trusted_proxies", []string{})

	// Identity defaults
	v.SetDefault("identity.provider", ProviderLocal)
	v.SetDefault("identity.local.store_path", "accounts.json")
	v.SetDefault("identity.local.signing_key", "")
	v.SetDefault("identity.local.token_ttl", time.Hour)
	v.SetDefault("identity.local.min_password_length", 6)
	v.SetDefault("identity.firebase.api_key", "")
	v.SetDefault("identity.firebase.base_url", "")
	v.SetDefault("identity.google.client_id", "")
	v.SetDefault("identity.google.client_secret", "")
	v.SetDefault("identity.google.redirect_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age_days", 28)
	v.SetDefault("logging.file.compress", true)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.TMDB.APIKey == "" || cfg.TMDB.APIKey == "your-api-key-here" {
		return fmt.Errorf("tmdb.api_key must be set to a valid API key")
	}

	switch cfg.Identity.Provider {
	case ProviderLocal:
	case ProviderFirebase:
		if cfg.Identity.Firebase.APIKey == "" {
			return fmt.Errorf("identity.firebase.api_key is required for the firebase provider")
		}
	default:
		return fmt.Errorf("invalid identity.provider: %s (must be 'local' or 'firebase')", cfg.Identity.Provider)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}

// ValidateServer checks the settings only the web server needs
func (c *Config) ValidateServer() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be positive")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("server.session_ttl must be positive")
	}
	if c.Server.AuthRateLimit <= 0 || c.Server.AuthRateBurst <= 0 {
		return fmt.Errorf("server.auth_rate_limit and server.auth_rate_burst must be positive")
	}
	for _, proxy := range c.Server.TrustedProxies {
		proxy = strings.TrimSpace(proxy)
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("server.trusted_proxies: %q is neither an IP nor a CIDR range", proxy)
		}
	}

	if c.Identity.Provider == ProviderLocal && len(c.Identity.Local.SigningKey) < 16 {
		return fmt.Errorf("identity.local.signing_key must be at least 16 characters")
	}

	google := c.Identity.Google
	if (google.ClientID == "") != (google.ClientSecret == "") {
		return fmt.Errorf("identity.google.client_id and identity.google.client_secret must be set together")
	}
	if google.Enabled() && google.RedirectURL == "" {
		return fmt.Errorf("identity.google.redirect_url is required when Google sign-in is enabled")
	}

	return nil
}
