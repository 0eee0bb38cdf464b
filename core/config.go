package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultReadRetryAttempts = 3
	defaultReadRetryBackoff  = 500 * time.Millisecond
	defaultHoldShelfDuration = 10
	defaultHoldShelfInterval = "Days"
	defaultHistoryPageSize   = 100
	defaultHistoryMaxPage    = 1000
)

var holdShelfIntervals = map[string]struct{}{
	"Minutes": {},
	"Hours":   {},
	"Days":    {},
	"Weeks":   {},
	"Months":  {},
}

type SharedResourcesConfig struct {
	// Verify resolves shared records live on every use instead of trusting
	// the bootstrapped defaults.
	Verify bool `koanf:"verify" mapstructure:"verify"`
}

type RetryConfig struct {
	MaxAttempts          int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	Backoff              time.Duration `koanf:"backoff" mapstructure:"backoff"`
	RetryableStatusCodes []int         `koanf:"retryable_status_codes" mapstructure:"retryable_status_codes"`
}

type HoldShelfExpiryConfig struct {
	Duration   int    `koanf:"duration" mapstructure:"duration"`
	IntervalID string `koanf:"interval_id" mapstructure:"interval_id"`
}

type HistoryConfig struct {
	DefaultPageSize int `koanf:"default_page_size" mapstructure:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size" mapstructure:"max_page_size"`
}

type GatewayConfig struct {
	BaseURL string        `koanf:"base_url" mapstructure:"base_url"`
	Tenant  string        `koanf:"tenant" mapstructure:"tenant"`
	Token   string        `koanf:"token" mapstructure:"token"`
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type EventsConfig struct {
	Brokers []string `koanf:"brokers" mapstructure:"brokers"`
	GroupID string   `koanf:"group_id" mapstructure:"group_id"`
	Topics  []string `koanf:"topics" mapstructure:"topics"`

	// Topic suffixes override the circulation.request and
	// circulation.check-in defaults.
	RequestTopicSuffix string `koanf:"request_topic_suffix" mapstructure:"request_topic_suffix"`
	CheckInTopicSuffix string `koanf:"check_in_topic_suffix" mapstructure:"check_in_topic_suffix"`
}

type Config struct {
	ServiceName     string                `koanf:"service_name" mapstructure:"service_name"`
	SharedResources SharedResourcesConfig `koanf:"shared_resources" mapstructure:"shared_resources"`
	Retry           RetryConfig           `koanf:"retry" mapstructure:"retry"`
	HoldShelfExpiry HoldShelfExpiryConfig `koanf:"hold_shelf_expiry" mapstructure:"hold_shelf_expiry"`
	History         HistoryConfig         `koanf:"history" mapstructure:"history"`
	Gateway         GatewayConfig         `koanf:"gateway" mapstructure:"gateway"`
	Events          EventsConfig          `koanf:"events" mapstructure:"events"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "dcb",
		Retry: RetryConfig{
			MaxAttempts:          defaultReadRetryAttempts,
			Backoff:              defaultReadRetryBackoff,
			RetryableStatusCodes: []int{http.StatusNotFound, http.StatusConflict},
		},
		HoldShelfExpiry: HoldShelfExpiryConfig{
			Duration:   defaultHoldShelfDuration,
			IntervalID: defaultHoldShelfInterval,
		},
		History: HistoryConfig{
			DefaultPageSize: defaultHistoryPageSize,
			MaxPageSize:     defaultHistoryMaxPage,
		},
		Gateway: GatewayConfig{
			Timeout: 30 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("core: retry.max_attempts must be at least 1")
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("core: retry.backoff must not be negative")
	}
	for _, code := range c.Retry.RetryableStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("core: retry.retryable_status_codes contains invalid status %d", code)
		}
	}
	if err := c.HoldShelfExpiry.Validate(); err != nil {
		return err
	}
	if c.History.DefaultPageSize < 1 || c.History.MaxPageSize < c.History.DefaultPageSize {
		return fmt.Errorf("core: history page sizes are invalid")
	}
	return nil
}

func (c HoldShelfExpiryConfig) Validate() error {
	if c.Duration < 1 {
		return fmt.Errorf("core: hold_shelf_expiry.duration must be positive")
	}
	if _, ok := holdShelfIntervals[c.IntervalID]; !ok {
		return fmt.Errorf("core: hold_shelf_expiry.interval_id %q is invalid", c.IntervalID)
	}
	return nil
}

func (c HoldShelfExpiryConfig) Period() HoldShelfExpiryPeriod {
	return HoldShelfExpiryPeriod{Duration: c.Duration, IntervalID: c.IntervalID}
}

// ReadRetryPolicy returns the bounded retry used by read-after-write calls.
func (c Config) ReadRetryPolicy() ReadRetryPolicy {
	return ReadRetryPolicy{
		MaxAttempts:          c.Retry.MaxAttempts,
		Backoff:              c.Retry.Backoff,
		RetryableStatusCodes: append([]int(nil), c.Retry.RetryableStatusCodes...),
	}
}
