package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`
	StaticDir      string   `yaml:"static_dir"`
	TLSCertPath    string   `yaml:"tls_cert_path"`
	TLSKeyPath     string   `yaml:"tls_key_path"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig contains screenshot storage configuration
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
}

// SessionConfig contains session cookie configuration
type SessionConfig struct {
	SecretKey string `yaml:"secret_key"`
	Name      string `yaml:"name"`
	MaxAge    string `yaml:"max_age"`
	Secure    bool   `yaml:"secure"`
}

// SecurityConfig contains login hardening configuration
type SecurityConfig struct {
	BcryptCost        int    `yaml:"bcrypt_cost"`
	MaxFailedAttempts int    `yaml:"max_failed_attempts"`
	LockoutWindow     string `yaml:"lockout_window"`
	// BlacklistTTL of "0" keeps blacklisted IPs blocked until restart
	BlacklistTTL string `yaml:"blacklist_ttl"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled"`
	RequestsPerWindow int    `yaml:"requests_per_window"`
	Window            string `yaml:"window"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  "127.0.0.1:5000",
			Environment: EnvProduction,
			StaticDir:   "static",
		},
		Database: DatabaseConfig{
			Path: "data/users.db",
		},
		Storage: StorageConfig{
			DataDir:       "data/uploads",
			MaxUploadSize: 10 * 1024 * 1024,
		},
		Session: SessionConfig{
			Name:   "session",
			MaxAge: "24h",
			Secure: true,
		},
		Security: SecurityConfig{
			BcryptCost:        12,
			MaxFailedAttempts: 5,
			LockoutWindow:     "15m",
			BlacklistTTL:      "0",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 500,
			Window:            "60s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.ListenAddr); err != nil {
		return fmt.Errorf("server.listen_addr is invalid: %w", err)
	}
	if c.Server.Environment != EnvDevelopment && c.Server.Environment != EnvProduction {
		return fmt.Errorf("server.environment must be '%s' or '%s'", EnvDevelopment, EnvProduction)
	}
	if (c.Server.TLSCertPath == "") != (c.Server.TLSKeyPath == "") {
		return fmt.Errorf("server.tls_cert_path and server.tls_key_path must be set together")
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("server.allowed_origins cannot contain '*' when credentials are allowed")
		}
	}

	// Database validation
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Storage validation
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	// Session validation
	if c.Session.Name == "" {
		return fmt.Errorf("session.name is required")
	}
	if d, err := parseDuration(c.Session.MaxAge); err != nil || d <= 0 {
		return fmt.Errorf("session.max_age must be a positive duration")
	}
	if c.Session.SecretKey == "" && c.Server.Environment != EnvDevelopment {
		return fmt.Errorf("session.secret_key is required outside development")
	}
	if c.Session.SecretKey != "" && len(c.Session.SecretKey) < 32 {
		return fmt.Errorf("session.secret_key must be at least 32 characters")
	}

	// Security validation
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		return fmt.Errorf("security.bcrypt_cost must be between 4 and 31")
	}
	if c.Security.MaxFailedAttempts <= 0 {
		return fmt.Errorf("security.max_failed_attempts must be positive")
	}
	if d, err := parseDuration(c.Security.LockoutWindow); err != nil || d <= 0 {
		return fmt.Errorf("security.lockout_window must be a positive duration")
	}
	if d, err := parseDuration(c.Security.BlacklistTTL); err != nil || d < 0 {
		return fmt.Errorf("security.blacklist_ttl must be zero or a positive duration")
	}

	// Rate limit validation
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 {
			return fmt.Errorf("rate_limit.requests_per_window must be positive")
		}
		if d, err := parseDuration(c.RateLimit.Window); err != nil || d <= 0 {
			return fmt.Errorf("rate_limit.window must be a positive duration")
		}
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// TLSEnabled reports whether a certificate pair is configured
func (c *Config) TLSEnabled() bool {
	return c.Server.TLSCertPath != "" && c.Server.TLSKeyPath != ""
}

// GetSessionMaxAge returns the rolling session lifetime
func (c *Config) GetSessionMaxAge() time.Duration {
	d, _ := parseDuration(c.Session.MaxAge)
	return d
}

// GetLockoutWindow returns the failed-login counting window
func (c *Config) GetLockoutWindow() time.Duration {
	d, _ := parseDuration(c.Security.LockoutWindow)
	return d
}

// GetBlacklistTTL returns how long a blacklisted IP stays blocked, 0 meaning forever
func (c *Config) GetBlacklistTTL() time.Duration {
	d, _ := parseDuration(c.Security.BlacklistTTL)
	return d
}

// GetRateLimitWindow returns the rate limiter window
func (c *Config) GetRateLimitWindow() time.Duration {
	d, _ := parseDuration(c.RateLimit.Window)
	return d
}

// parseDuration parses duration with support for days (e.g., "90d")
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "0" {
		return 0, nil
	}
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
