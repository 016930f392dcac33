package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	telemetry "remitlend/observability/otel"
)

const (
	defaultListen      = ":8080"
	defaultDataDir     = "./remitlend-data"
	defaultGenesis     = "genesis.toml"
	defaultIndexDSN    = "remitlend-index.db"
	defaultScopeClaim  = "scope"
	defaultClockSkew   = 2 * time.Minute
	defaultShutdown    = 5 * time.Second
	defaultRatePerMin  = 120
	defaultRateBurst   = 20
	defaultRequestWait = 10 * time.Second
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress   string        `yaml:"listen"`
	DataDir         string        `yaml:"data_dir"`
	Storage         string        `yaml:"storage"`
	GenesisPath     string        `yaml:"genesis"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLS             TLSConfig     `yaml:"tls"`
	Index           IndexConfig   `yaml:"index"`
	Auth            AuthConfig    `yaml:"auth"`
	RateLimit       RateConfig    `yaml:"rate_limit"`
	Logging         LogConfig     `yaml:"logging"`
	Telemetry       TelemetryConf `yaml:"telemetry"`
	Webhook         WebhookConfig `yaml:"webhook"`
}

// TLSConfig holds the listener certificate. Plaintext requires AllowInsecure.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// Enabled reports whether a certificate was configured.
func (cfg TLSConfig) Enabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

// IndexConfig selects the event index database.
type IndexConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig describes the HMAC-signed bearer tokens accepted by the API.
// The token subject is the caller's address.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ScopeClaim string        `yaml:"scope_claim"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

type RateConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConf toggles the OTLP exporters. Unset fields fall back to the
// OTEL_* environment variables.
type TelemetryConf struct {
	Endpoint       string        `yaml:"endpoint"`
	Insecure       bool          `yaml:"insecure"`
	Metrics        bool          `yaml:"metrics"`
	Traces         bool          `yaml:"traces"`
	SampleRatio    float64       `yaml:"sample_ratio"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// Exporter resolves the exporter settings for service, applying environment
// overrides through lookup.
func (cfg TelemetryConf) Exporter(service string, lookup func(string) (string, bool)) telemetry.Config {
	return telemetry.Config{
		ServiceName:    service,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		Metrics:        cfg.Metrics,
		Traces:         cfg.Traces,
		SampleRatio:    cfg.SampleRatio,
		ExportInterval: cfg.ExportInterval,
	}.WithEnv(lookup)
}

// WebhookConfig forwards committed events to an HTTP endpoint. An empty URL
// disables delivery. The secret falls back to REMITLEND_WEBHOOK_SECRET.
type WebhookConfig struct {
	URL         string   `yaml:"url"`
	Secret      string   `yaml:"secret"`
	Types       []string `yaml:"types"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// Enabled reports whether delivery is configured.
func (cfg WebhookConfig) Enabled() bool {
	return cfg.URL != ""
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if cfg.Storage == "" {
		cfg.Storage = "leveldb"
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	if cfg.GenesisPath == "" {
		cfg.GenesisPath = defaultGenesis
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestWait
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Index.normalize()
	cfg.Auth.normalize()
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = defaultRatePerMin
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Webhook.URL = strings.TrimSpace(cfg.Webhook.URL)
	cfg.Webhook.Secret = strings.TrimSpace(cfg.Webhook.Secret)
	if env := strings.TrimSpace(os.Getenv("REMITLEND_WEBHOOK_SECRET")); env != "" {
		cfg.Webhook.Secret = env
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.Storage {
	case "leveldb", "memory":
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.Storage)
	}
	if (cfg.TLS.CertPath == "") != (cfg.TLS.KeyPath == "") {
		return fmt.Errorf("tls: requires both certificate and key")
	}
	if !cfg.TLS.Enabled() && !cfg.TLS.AllowInsecure {
		return fmt.Errorf("tls: credentials are required unless allow_insecure is set")
	}
	if err := cfg.Index.validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1]")
	}
	if cfg.Webhook.Enabled() && cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook: secret required when url is set")
	}
	return nil
}

func (cfg *IndexConfig) normalize() {
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" && cfg.Driver == "sqlite" {
		cfg.DSN = defaultIndexDSN
	}
}

func (cfg IndexConfig) validate() error {
	switch cfg.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return fmt.Errorf("dsn required for %s", cfg.Driver)
	}
	return nil
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	if env := strings.TrimSpace(os.Getenv("REMITLEND_JWT_SECRET")); env != "" {
		cfg.HMACSecret = env
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.ScopeClaim = strings.TrimSpace(cfg.ScopeClaim)
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = defaultScopeClaim
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultClockSkew
	}
}

func (cfg AuthConfig) validate() error {
	if len(cfg.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes")
	}
	return nil
}
