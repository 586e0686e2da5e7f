package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: "0.0.0.0:8443"
session:
  secret_key: "0123456789abcdef0123456789abcdef"
`)
	cfg, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:8443" {
		t.Fatalf("listen_addr not read from file: %q", cfg.Server.ListenAddr)
	}
	if cfg.RateLimit.RequestsPerWindow != 500 || cfg.GetRateLimitWindow() != time.Minute {
		t.Fatalf("rate limit defaults not applied: %+v", cfg.RateLimit)
	}
	if cfg.Security.MaxFailedAttempts != 5 || cfg.GetLockoutWindow() != 15*time.Minute {
		t.Fatalf("lockout defaults not applied: %+v", cfg.Security)
	}
	if cfg.GetBlacklistTTL() != 0 {
		t.Fatalf("blacklist should be permanent by default")
	}
	if cfg.GetSessionMaxAge() != 24*time.Hour {
		t.Fatalf("session max age = %v", cfg.GetSessionMaxAge())
	}
	if cfg.Storage.MaxUploadSize != 10*1024*1024 {
		t.Fatalf("max upload size = %d", cfg.Storage.MaxUploadSize)
	}
}

func TestSecretKeyRequiredInProduction(t *testing.T) {
	path := writeConfig(t, "server:\n  environment: production\n")
	_, err := LoadWithEnv(path)
	if err == nil || !strings.Contains(err.Error(), "secret_key") {
		t.Fatalf("expected secret_key error, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	vars := map[string]string{
		"SHOTSERVER_SECRET_KEY":      "env-secret-env-secret-env-secret-42",
		"SHOTSERVER_ALLOWED_ORIGINS": "app://screenie, https://shots.example.com",
		"SHOTSERVER_DATA_DIR":        "/srv/shots",
		"SHOTSERVER_ENV":             "Development",
		"SHOTSERVER_PORT":            "9000",
		"SHOTSERVER_TLS_CERT":        "/etc/tls/cert.pem",
		"SHOTSERVER_TLS_KEY":         "/etc/tls/key.pem",
	}
	applyEnv(cfg, func(k string) string { return vars[k] })

	if cfg.Session.SecretKey != vars["SHOTSERVER_SECRET_KEY"] {
		t.Fatalf("secret key not overridden")
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://shots.example.com" {
		t.Fatalf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Storage.DataDir != "/srv/shots" {
		t.Fatalf("data dir = %q", cfg.Storage.DataDir)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("environment = %q", cfg.Server.Environment)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if !cfg.TLSEnabled() {
		t.Fatalf("TLS should be enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsWildcardOrigin(t *testing.T) {
	cfg := Default()
	cfg.Session.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.Server.AllowedOrigins = []string{"*"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected wildcard origin to be rejected")
	}
}

func TestParseDurationDays(t *testing.T) {
	d, err := parseDuration("2d")
	if err != nil || d != 48*time.Hour {
		t.Fatalf("parseDuration(2d) = %v, %v", d, err)
	}
	d, err = parseDuration("0")
	if err != nil || d != 0 {
		t.Fatalf("parseDuration(0) = %v, %v", d, err)
	}
}
