package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	TMDB     TMDBConfig     `mapstructure:"tmdb"`
	Server   ServerConfig   `mapstructure:"server"`
	Identity IdentityConfig `mapstructure:"identity"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// TMDBConfig holds TMDB API connection details
type TMDBConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	ImageBaseURL string        `mapstructure:"image_base_url"`
	Language     string        `mapstructure:"language"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AuthRateLimit   float64       `mapstructure:"auth_rate_limit"`
	AuthRateBurst   int           `mapstructure:"auth_rate_burst"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

// IdentityConfig selects and configures the identity provider
type IdentityConfig struct {
	Provider string         `mapstructure:"provider"`
	Local    LocalConfig    `mapstructure:"local"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Google   GoogleConfig   `mapstructure:"google"`
}

// LocalConfig configures the built-in account directory
type LocalConfig struct {
	StorePath         string        `mapstructure:"store_path"`
	SigningKey        string        `mapstructure:"signing_key"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	MinPasswordLength int           `mapstructure:"min_password_length"`
}

// FirebaseConfig holds Firebase Authentication connection details
type FirebaseConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GoogleConfig holds the OAuth2 client used for Google sign-in
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Enabled reports whether Google sign-in is configured
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// FilterConfig contains filter presets
type FilterConfig struct {
	Presets map[string]string `mapstructure:"presets"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	Color  bool          `mapstructure:"color"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the optional rotating log file
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}
