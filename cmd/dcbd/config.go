package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-dcb/core"
	"github.com/goliatone/go-dcb/metrics"
	"gopkg.in/yaml.v3"
)

type daemonConfig struct {
	Core     core.Config
	HTTP     httpConfig
	Database databaseConfig
	Cache    cacheConfig
	Metrics  metricsConfig

	BootstrapOnStart bool
}

type httpConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type databaseConfig struct {
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	Debug       bool          `yaml:"debug"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

func (c databaseConfig) GetDebug() bool                { return c.Debug }
func (c databaseConfig) GetDriver() string             { return c.Driver }
func (c databaseConfig) GetServer() string             { return c.DSN }
func (c databaseConfig) GetPingTimeout() time.Duration { return c.PingTimeout }
func (c databaseConfig) GetOtelIdentifier() string     { return "go-dcb" }

type cacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// metricsConfig tunes the Prometheus recorder. Empty fields keep the
// recorder defaults.
type metricsConfig struct {
	Namespace string    `yaml:"namespace"`
	Labels    []string  `yaml:"labels"`
	Buckets   []float64 `yaml:"buckets"`
}

func (c metricsConfig) options() []metrics.Option {
	opts := []metrics.Option{}
	if namespace := strings.TrimSpace(c.Namespace); namespace != "" {
		opts = append(opts, metrics.WithNamespace(namespace))
	}
	if len(c.Labels) > 0 {
		opts = append(opts, metrics.WithLabels(c.Labels...))
	}
	if len(c.Buckets) > 0 {
		opts = append(opts, metrics.WithBuckets(c.Buckets...))
	}
	return opts
}

type configFile struct {
	DCB              map[string]any `yaml:"dcb"`
	HTTP             httpConfig     `yaml:"http"`
	Database         databaseConfig `yaml:"database"`
	Cache            cacheConfig    `yaml:"cache"`
	Metrics          metricsConfig  `yaml:"metrics"`
	BootstrapOnStart bool           `yaml:"bootstrap_on_start"`
}

// loadConfig reads the daemon file, then applies DCB_* environment
// overrides. The dcb section goes through the core config provider.
func loadConfig(ctx context.Context, path string) (daemonConfig, error) {
	file := configFile{
		HTTP:     httpConfig{Addr: ":8081", ShutdownTimeout: 15 * time.Second},
		Database: databaseConfig{Driver: "postgres", PingTimeout: 5 * time.Second},
		Cache:    cacheConfig{TTL: time.Minute},
	}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return daemonConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &file); err != nil {
				return daemonConfig{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	coreCfg, err := core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: file.DCB}).Load(ctx, core.DefaultConfig())
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load dcb config: %w", err)
	}

	cfg := daemonConfig{
		Core:             coreCfg,
		HTTP:             file.HTTP,
		Database:         file.Database,
		Cache:            file.Cache,
		Metrics:          file.Metrics,
		BootstrapOnStart: file.BootstrapOnStart,
	}
	cfg.HTTP.Addr = envOrDefault("DCB_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Database.DSN = envOrDefault("DCB_DATABASE_DSN", cfg.Database.DSN)
	cfg.Core.Gateway.BaseURL = envOrDefault("DCB_GATEWAY_BASE_URL", cfg.Core.Gateway.BaseURL)
	cfg.Core.Gateway.Tenant = envOrDefault("DCB_GATEWAY_TENANT", cfg.Core.Gateway.Tenant)
	cfg.Core.Gateway.Token = envOrDefault("DCB_GATEWAY_TOKEN", cfg.Core.Gateway.Token)
	cfg.Core.Events.Brokers = envCSV("DCB_KAFKA_BROKERS", cfg.Core.Events.Brokers)

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return daemonConfig{}, fmt.Errorf("missing database dsn (database.dsn or DCB_DATABASE_DSN)")
	}
	if strings.TrimSpace(cfg.Core.Gateway.BaseURL) == "" {
		return daemonConfig{}, fmt.Errorf("missing gateway base url (dcb.gateway.base_url or DCB_GATEWAY_BASE_URL)")
	}
	return cfg, nil
}

func envOrDefault(name string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envCSV(name string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
