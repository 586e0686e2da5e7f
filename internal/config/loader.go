package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "SHOTSERVER_"

// Load loads configuration from a YAML file on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides file values with SHOTSERVER_* variables
func applyEnv(cfg *Config, getenv func(string) string) {
	env := func(key string) string {
		return strings.TrimSpace(getenv(envPrefix + key))
	}

	if v := env("SECRET_KEY"); v != "" {
		cfg.Session.SecretKey = v
	}

	if v := env("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}

	if v := env("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := env("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := env("ENV"); v != "" {
		cfg.Server.Environment = strings.ToLower(v)
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}

	// HOST and PORT override the matching half of the listen address
	host, port := env("HOST"), env("PORT")
	if host != "" || port != "" {
		curHost, curPort, err := net.SplitHostPort(cfg.Server.ListenAddr)
		if err != nil {
			curHost, curPort = "", ""
		}
		if host != "" {
			curHost = host
		}
		if port != "" {
			curPort = port
		}
		cfg.Server.ListenAddr = net.JoinHostPort(curHost, curPort)
	}

	if v := env("TLS_CERT"); v != "" {
		cfg.Server.TLSCertPath = v
	}

	if v := env("TLS_KEY"); v != "" {
		cfg.Server.TLSKeyPath = v
	}
}
