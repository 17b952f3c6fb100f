// Package config loads the JSON configuration and credentials files
// consumed by the DRM agent and builds the root logger from them.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Config is the top-level JSON configuration file (spec §6).
type Config struct {
	Licensing LicensingConfig `json:"licensing"`
	DRM       DRMConfig       `json:"drm"`
	Design    DesignConfig    `json:"design"`
	Settings  SettingsConfig  `json:"settings"`
}

// LicensingConfig selects metered vs node-locked operation.
type LicensingConfig struct {
	NodeLocked bool   `json:"nodelocked"`
	LicenseDir string `json:"license_dir"`
}

// DRMConfig carries controller-facing parameters.
type DRMConfig struct {
	FrequencyMHz    int `json:"frequency_mhz"`
	MinVersionMajor int `json:"min_version_major"`
	MinVersionMinor int `json:"min_version_minor"`
}

// DesignConfig is optional hardware-identity metadata forwarded in the
// request header but never interpreted by the agent.
type DesignConfig struct {
	UDID      string `json:"udid"`
	BoardType string `json:"boardType"`
}

// SettingsConfig holds tunables with documented defaults (spec §6).
type SettingsConfig struct {
	WSRetryPeriodLong           int     `json:"ws_retry_period_long"`
	WSRetryPeriodShort          int     `json:"ws_retry_period_short"`
	WSRequestTimeout            int     `json:"ws_request_timeout"`
	FrequencyDetectionPeriodMs  int     `json:"frequency_detection_period"`
	FrequencyDetectionThreshold float64 `json:"frequency_detection_threshold"`
	LogVerbosity                string  `json:"log_verbosity"`
	LogFormat                   string  `json:"log_format"`
}

// Credentials is the opaque JSON consumed by the web client. The core
// agent never looks inside it beyond what it needs to build requests.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURL     string `json:"token_url"`
	LicenseURL   string `json:"license_url"`
}

const (
	defaultWSRetryPeriodLong           = 60
	defaultWSRetryPeriodShort          = 2
	defaultWSRequestTimeout            = 10
	defaultFrequencyDetectionPeriodMs  = 100
	defaultFrequencyDetectionThreshold = 2.0
	defaultMinVersionMajor             = 3
	defaultMinVersionMinor             = 0
)

// Load reads and parses the JSON configuration file at path, applying
// the documented defaults for any unset setting, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCredentials reads and parses the credentials file. Its contents
// are opaque to the core agent; only the web client interprets them.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	return &creds, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.WSRetryPeriodLong == 0 {
		c.Settings.WSRetryPeriodLong = defaultWSRetryPeriodLong
	}
	if c.Settings.WSRetryPeriodShort == 0 {
		c.Settings.WSRetryPeriodShort = defaultWSRetryPeriodShort
	}
	if c.Settings.WSRequestTimeout == 0 {
		c.Settings.WSRequestTimeout = defaultWSRequestTimeout
	}
	if c.Settings.FrequencyDetectionPeriodMs == 0 {
		c.Settings.FrequencyDetectionPeriodMs = defaultFrequencyDetectionPeriodMs
	}
	if c.Settings.FrequencyDetectionThreshold == 0 {
		c.Settings.FrequencyDetectionThreshold = defaultFrequencyDetectionThreshold
	}
	if c.DRM.MinVersionMajor == 0 {
		c.DRM.MinVersionMajor = defaultMinVersionMajor
		c.DRM.MinVersionMinor = defaultMinVersionMinor
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = "console"
	}
	if c.Settings.LogVerbosity == "" {
		c.Settings.LogVerbosity = "info"
	}
}

// Validate enforces the invariants spec §3/§6 require of the settings
// block regardless of how the file was produced.
func (c *Config) Validate() error {
	if !c.Licensing.NodeLocked && c.DRM.FrequencyMHz <= 0 {
		return fmt.Errorf("drm.frequency_mhz must be set and positive for metered licensing")
	}
	if c.Licensing.NodeLocked && c.Licensing.LicenseDir == "" {
		return fmt.Errorf("licensing.license_dir must be set for node-locked licensing")
	}
	if c.Settings.WSRequestTimeout <= 0 {
		return fmt.Errorf("settings.ws_request_timeout must be positive")
	}
	if c.Settings.WSRetryPeriodLong != 0 && c.Settings.WSRetryPeriodLong <= c.Settings.WSRetryPeriodShort {
		return fmt.Errorf("settings.ws_retry_period_long must be greater than ws_retry_period_short")
	}
	return nil
}

// NewLogger builds the root logger from the settings block. The
// logger is returned, never assigned to a package-level global: every
// component that needs to log receives it explicitly (Design Note
// "Global logger").
func NewLogger(s SettingsConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(s.LogVerbosity)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if s.LogFormat == "json" {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// DefaultLogWriter is the destination used by cmd/ entry points unless
// overridden, matching the teacher's "log to stderr" default.
var DefaultLogWriter io.Writer = os.Stderr
