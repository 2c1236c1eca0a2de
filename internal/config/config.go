// Package config loads service settings from the environment, an optional
// .env file and an optional YAML file. Environment variables win over YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"shipnorth/internal/model"
)

type Config struct {
	Port         string
	AllowOrigins []string

	DatabaseURL string
	DBMigrate   bool
	RedisURL    string

	BackendURL       string
	BackendToken     string
	BackendJWTSecret string
	BackendTimeout   time.Duration
	BackendRPS       float64

	AuthMode       string
	AuthHMACSecret string

	RateRPS   float64
	RateBurst int

	TrackingInterval time.Duration
	Optimizer        model.OptimizeOptions
}

// fileConfig is the YAML shape read from CONFIG_FILE.
type fileConfig struct {
	Port             string                 `yaml:"port"`
	BackendURL       string                 `yaml:"backendUrl"`
	BackendTimeout   string                 `yaml:"backendTimeout"`
	TrackingInterval string                 `yaml:"trackingInterval"`
	AllowOrigins     []string               `yaml:"allowOrigins"`
	Optimizer        *model.OptimizeOptions `yaml:"optimizer"`
}

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		Port:             "8080",
		DBMigrate:        true,
		BackendTimeout:   15 * time.Second,
		BackendRPS:       10,
		AuthMode:         "dev",
		RateRPS:          20,
		RateBurst:        40,
		TrackingInterval: 10 * time.Second,
		Optimizer:        model.DefaultOptimizeOptions(),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.BackendURL != "" {
		c.BackendURL = fc.BackendURL
	}
	if fc.BackendTimeout != "" {
		d, err := time.ParseDuration(fc.BackendTimeout)
		if err != nil {
			return fmt.Errorf("config: backendTimeout: %w", err)
		}
		c.BackendTimeout = d
	}
	if fc.TrackingInterval != "" {
		d, err := time.ParseDuration(fc.TrackingInterval)
		if err != nil {
			return fmt.Errorf("config: trackingInterval: %w", err)
		}
		c.TrackingInterval = d
	}
	if len(fc.AllowOrigins) > 0 {
		c.AllowOrigins = fc.AllowOrigins
	}
	if fc.Optimizer != nil {
		c.Optimizer = *fc.Optimizer
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	c.DBMigrate = os.Getenv("DB_MIGRATE") != "false" && c.DBMigrate
	c.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	c.BackendURL = strings.TrimRight(getEnv("BACKEND_URL", c.BackendURL), "/")
	c.BackendToken = os.Getenv("BACKEND_TOKEN")
	c.BackendJWTSecret = os.Getenv("BACKEND_JWT_SECRET")
	c.AuthMode = strings.ToLower(getEnv("AUTH_MODE", c.AuthMode))
	c.AuthHMACSecret = os.Getenv("AUTH_HMAC_SECRET")
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.AllowOrigins = splitList(v)
	}

	var err error
	if c.BackendTimeout, err = durationEnv("BACKEND_TIMEOUT", c.BackendTimeout); err != nil {
		return err
	}
	if c.TrackingInterval, err = durationEnv("TRACKING_INTERVAL", c.TrackingInterval); err != nil {
		return err
	}
	if c.BackendRPS, err = floatEnv("BACKEND_RPS", c.BackendRPS); err != nil {
		return err
	}
	if c.RateRPS, err = floatEnv("RATE_RPS", c.RateRPS); err != nil {
		return err
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RATE_BURST: %w", err)
		}
		c.RateBurst = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("config: BACKEND_URL environment variable not set")
	}
	switch c.AuthMode {
	case "dev":
	case "hmac":
		if c.AuthHMACSecret == "" {
			return fmt.Errorf("config: AUTH_HMAC_SECRET required for AUTH_MODE=hmac")
		}
	default:
		return fmt.Errorf("config: unsupported AUTH_MODE %q", c.AuthMode)
	}
	if c.TrackingInterval < time.Second {
		return fmt.Errorf("config: TRACKING_INTERVAL must be at least 1s")
	}
	if c.Optimizer.MaxDrivingHours <= 0 {
		return fmt.Errorf("config: optimizer maxDrivingHours must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
