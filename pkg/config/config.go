// Package config defines the client configuration surface with TOML file
// loading, environment overrides and validation.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/apimetry/apimetry-go/pkg/hub"
	"github.com/apimetry/apimetry-go/pkg/requestlog"
)

var envPattern = regexp.MustCompile(`^[\w-]{1,32}$`)

const (
	// MinSyncInterval is the lowest accepted sync interval; anything
	// faster serves no purpose and hammers the hub.
	MinSyncInterval = 10 * time.Second

	maxAppVersionLength = 32
)

// Config is the full configuration surface consumed by the client.
type Config struct {
	// ClientID is the hub-issued client identity (hexadecimal UUID).
	ClientID string `toml:"clientId"`
	// Env names the deployment environment, e.g. "prod" or "staging".
	Env string `toml:"env"`
	// AppVersion is reported in the startup handshake.
	AppVersion string `toml:"appVersion"`

	Hub        HubConfig         `toml:"hub"`
	Sync       SyncConfig        `toml:"sync"`
	Limits     LimitsConfig      `toml:"limits"`
	RequestLog requestlog.Config `toml:"requestLog"`
}

// HubConfig tunes the transport to the collector.
type HubConfig struct {
	BaseURL        string        `toml:"baseUrl"`
	RequestTimeout time.Duration `toml:"requestTimeout"`
	MaxRetries     int           `toml:"maxRetries"`
	RetryBaseDelay time.Duration `toml:"retryBaseDelay"`
	RetryMaxDelay  time.Duration `toml:"retryMaxDelay"`
	RetryJitter    time.Duration `toml:"retryJitter"`
	RetryBudget    time.Duration `toml:"retryBudget"`
}

// SyncConfig tunes the sync loop cadence and lifecycle bounds.
type SyncConfig struct {
	// Interval between metric syncs.
	Interval time.Duration `toml:"interval"`
	// InitialInterval, when non-zero, is the faster cadence used for
	// InitialIntervalDuration after startup so new deployments show up
	// quickly.
	InitialInterval         time.Duration `toml:"initialInterval"`
	InitialIntervalDuration time.Duration `toml:"initialIntervalDuration"`
	// DrainTimeout bounds the final best-effort flush during shutdown.
	DrainTimeout time.Duration `toml:"drainTimeout"`
	// HandshakeBaseDelay seeds the handshake retry backoff; delays double
	// up to the sync interval.
	HandshakeBaseDelay time.Duration `toml:"handshakeBaseDelay"`
}

// LimitsConfig caps the distinct-key error tables.
type LimitsConfig struct {
	MaxValidationErrorKeys int `toml:"maxValidationErrorKeys"`
	MaxServerErrorKeys     int `toml:"maxServerErrorKeys"`
}

// Default returns the configuration defaults; only ClientID and Env need
// to be filled in.
func Default() *Config {
	senderDefaults := hub.DefaultSenderConfig()
	return &Config{
		Hub: HubConfig{
			BaseURL:        senderDefaults.BaseURL,
			RequestTimeout: senderDefaults.RequestTimeout,
			MaxRetries:     senderDefaults.MaxRetries,
			RetryBaseDelay: senderDefaults.RetryBaseDelay,
			RetryMaxDelay:  senderDefaults.RetryMaxDelay,
			RetryJitter:    senderDefaults.RetryJitter,
			RetryBudget:    senderDefaults.RetryBudget,
		},
		Sync: SyncConfig{
			Interval:                60 * time.Second,
			InitialInterval:         10 * time.Second,
			InitialIntervalDuration: time.Hour,
			DrainTimeout:            5 * time.Second,
			HandshakeBaseDelay:      time.Second,
		},
		Limits: LimitsConfig{},
	}
}

// Load reads a TOML file on top of the defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	config := Default()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	config.LoadFromEnvironment()
	return config, nil
}

// LoadFromEnvironment overrides identity and endpoint settings from the
// process environment.
func (c *Config) LoadFromEnvironment() {
	if v := os.Getenv("APIMETRY_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("APIMETRY_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("APIMETRY_BASE_URL"); v != "" {
		c.Hub.BaseURL = v
	}
}

// Validate checks the configuration before the client starts.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.ClientID, validation.Required, is.UUID),
		validation.Field(&c.Env, validation.Required, validation.Match(envPattern)),
		validation.Field(&c.AppVersion, validation.Length(0, maxAppVersionLength)),
	)
	if err != nil {
		return err
	}
	if c.Sync.Interval < MinSyncInterval {
		return fmt.Errorf("sync interval must be at least %s, got %s", MinSyncInterval, c.Sync.Interval)
	}
	if c.Hub.RetryBudget >= c.Sync.Interval {
		return fmt.Errorf("hub retry budget %s must be below the sync interval %s", c.Hub.RetryBudget, c.Sync.Interval)
	}
	return nil
}

// SenderConfig maps the hub section onto the sender's configuration.
func (c *Config) SenderConfig() hub.SenderConfig {
	return hub.SenderConfig{
		BaseURL:        c.Hub.BaseURL,
		RequestTimeout: c.Hub.RequestTimeout,
		MaxRetries:     c.Hub.MaxRetries,
		RetryBaseDelay: c.Hub.RetryBaseDelay,
		RetryMaxDelay:  c.Hub.RetryMaxDelay,
		RetryJitter:    c.Hub.RetryJitter,
		RetryBudget:    c.Hub.RetryBudget,
	}
}
