package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "DATABASE_URL", "DB_MIGRATE", "REDIS_URL",
		"BACKEND_URL", "BACKEND_TOKEN", "BACKEND_JWT_SECRET", "BACKEND_TIMEOUT", "BACKEND_RPS",
		"AUTH_MODE", "AUTH_HMAC_SECRET", "RATE_RPS", "RATE_BURST", "TRACKING_INTERVAL", "ALLOW_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BACKEND_URL", "http://backend.test/api/")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("Expected default port 8080, got %q", cfg.Port)
		}
		if cfg.BackendURL != "http://backend.test/api" {
			t.Errorf("Expected trailing slash trimmed, got %q", cfg.BackendURL)
		}
		if cfg.Optimizer.MaxDrivingHours != 10 || !cfg.Optimizer.TrafficChecks {
			t.Errorf("Unexpected optimizer defaults: %+v", cfg.Optimizer)
		}
		if !cfg.DBMigrate {
			t.Error("Expected DBMigrate default true")
		}
	})

	t.Run("MissingBackendURL", func(t *testing.T) {
		clearEnv(t)
		if _, err := Load(); err == nil {
			t.Fatal("Expected an error for missing BACKEND_URL, got nil")
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BACKEND_URL", "http://backend.test")
		t.Setenv("PORT", "9090")
		t.Setenv("BACKEND_TIMEOUT", "3s")
		t.Setenv("RATE_BURST", "7")
		t.Setenv("ALLOW_ORIGINS", "https://a.test, https://b.test")
		t.Setenv("DB_MIGRATE", "false")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Port != "9090" || cfg.BackendTimeout != 3*time.Second || cfg.RateBurst != 7 {
			t.Errorf("Overrides not applied: %+v", cfg)
		}
		if len(cfg.AllowOrigins) != 2 || cfg.AllowOrigins[1] != "https://b.test" {
			t.Errorf("Unexpected origins: %v", cfg.AllowOrigins)
		}
		if cfg.DBMigrate {
			t.Error("Expected DBMigrate false")
		}
	})

	t.Run("BadDuration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BACKEND_URL", "http://backend.test")
		t.Setenv("TRACKING_INTERVAL", "soon")
		if _, err := Load(); err == nil {
			t.Fatal("Expected an error for bad TRACKING_INTERVAL")
		}
	})

	t.Run("HMACNeedsSecret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BACKEND_URL", "http://backend.test")
		t.Setenv("AUTH_MODE", "hmac")
		if _, err := Load(); err == nil {
			t.Fatal("Expected an error for hmac without secret")
		}
	})

	t.Run("YAMLFile", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		body := []byte("backendUrl: http://yaml.test\ntrackingInterval: 30s\noptimizer:\n  maxDrivingHours: 8\n  fuelEfficiency: true\n")
		if err := os.WriteFile(path, body, 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("PORT", "7000")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.BackendURL != "http://yaml.test" {
			t.Errorf("Expected backend URL from YAML, got %q", cfg.BackendURL)
		}
		if cfg.TrackingInterval != 30*time.Second {
			t.Errorf("Expected 30s tracking interval, got %v", cfg.TrackingInterval)
		}
		if cfg.Optimizer.MaxDrivingHours != 8 || cfg.Optimizer.TrafficChecks {
			t.Errorf("Unexpected optimizer from YAML: %+v", cfg.Optimizer)
		}
		if cfg.Port != "7000" {
			t.Errorf("Expected env to win over YAML, got %q", cfg.Port)
		}
	})
}
