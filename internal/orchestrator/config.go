package orchestrator

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const (
	defaultReadinessAttempts     = 30
	defaultReadinessInitialDelay = 250 * time.Millisecond
	defaultReadinessMaxDelay     = 5 * time.Second
	defaultFixedDelay            = 4 * time.Second
	defaultRestartMax            = 5
	defaultRestartBackoff        = 2 * time.Second
)

// IcecastProcessConfig describes how the icecast child process is launched.
type IcecastProcessConfig struct {
	Binary string `yaml:"binary"`
	Config string `yaml:"config"`
	// User is the low-privilege account icecast runs under. Empty means
	// the orchestrator's own account.
	User   string `yaml:"user"`
	LogDir string `yaml:"log_dir"`
}

// ReadinessConfig bounds the startup probe that replaces the historical
// fixed sleep. When ProbeURL is empty the orchestrator falls back to waiting
// FixedDelay once, preserving the original fire-and-forget behaviour.
type ReadinessConfig struct {
	ProbeURL     string        `yaml:"probe_url"`
	Attempts     int           `yaml:"attempts"`
	InitialDelay time.Duration `yaml:"-"`
	MaxDelay     time.Duration `yaml:"-"`
	FixedDelay   time.Duration `yaml:"-"`

	// Raw duration strings from the policy file, parsed during load.
	RawInitialDelay string `yaml:"initial_delay"`
	RawMaxDelay     string `yaml:"max_delay"`
	RawFixedDelay   string `yaml:"fixed_delay"`
}

// RestartPolicy controls whether a crashed icecast process is restarted.
// Disabled by default: the historical deployment relied on the platform
// restarting the whole container instead.
type RestartPolicy struct {
	Enabled     bool          `yaml:"enabled"`
	MaxRestarts int           `yaml:"max_restarts"`
	Backoff     time.Duration `yaml:"-"`

	RawBackoff string `yaml:"backoff"`
}

// Config is the full orchestration policy.
type Config struct {
	Icecast   IcecastProcessConfig `yaml:"icecast"`
	Readiness ReadinessConfig      `yaml:"readiness"`
	Restart   RestartPolicy        `yaml:"restart"`
}

func (c *Config) applyDefaults() {
	if c.Icecast.Binary == "" {
		c.Icecast.Binary = "icecast2"
	}
	if c.Readiness.Attempts <= 0 {
		c.Readiness.Attempts = defaultReadinessAttempts
	}
	if c.Readiness.InitialDelay <= 0 {
		c.Readiness.InitialDelay = defaultReadinessInitialDelay
	}
	if c.Readiness.MaxDelay <= 0 {
		c.Readiness.MaxDelay = defaultReadinessMaxDelay
	}
	if c.Readiness.FixedDelay <= 0 {
		c.Readiness.FixedDelay = defaultFixedDelay
	}
	if c.Restart.MaxRestarts <= 0 {
		c.Restart.MaxRestarts = defaultRestartMax
	}
	if c.Restart.Backoff <= 0 {
		c.Restart.Backoff = defaultRestartBackoff
	}
}

// LoadConfig resolves the orchestration policy. A YAML policy file named by
// RADIOWAVE_ORCHESTRATION_CONFIG is loaded first, then individual environment
// variables override its fields.
func LoadConfig() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("RADIOWAVE_ORCHESTRATION_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read orchestration config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse orchestration config: %w", err)
		}
		if err := cfg.parseDurations(); err != nil {
			return Config{}, err
		}
	}
	if v := strings.TrimSpace(os.Getenv("RADIOWAVE_ICECAST_BIN")); v != "" {
		cfg.Icecast.Binary = v
	}
	if v := strings.TrimSpace(os.Getenv("RADIOWAVE_ICECAST_CONFIG")); v != "" {
		cfg.Icecast.Config = v
	}
	if v := strings.TrimSpace(os.Getenv("RADIOWAVE_ICECAST_USER")); v != "" {
		cfg.Icecast.User = v
	}
	if v := strings.TrimSpace(os.Getenv("RADIOWAVE_ICECAST_LOG_DIR")); v != "" {
		cfg.Icecast.LogDir = v
	}
	if v := strings.TrimSpace(os.Getenv("RADIOWAVE_READINESS_PROBE_URL")); v != "" {
		cfg.Readiness.ProbeURL = v
	}
	if v := envInt("RADIOWAVE_READINESS_ATTEMPTS"); v > 0 {
		cfg.Readiness.Attempts = v
	}
	if v := envDuration("RADIOWAVE_READINESS_INITIAL_DELAY"); v > 0 {
		cfg.Readiness.InitialDelay = v
	}
	if v := envDuration("RADIOWAVE_READINESS_MAX_DELAY"); v > 0 {
		cfg.Readiness.MaxDelay = v
	}
	if v := envDuration("RADIOWAVE_STARTUP_DELAY"); v > 0 {
		cfg.Readiness.FixedDelay = v
	}
	if v, ok := envBool("RADIOWAVE_ICECAST_RESTART"); ok {
		cfg.Restart.Enabled = v
	}
	if v := envInt("RADIOWAVE_ICECAST_MAX_RESTARTS"); v > 0 {
		cfg.Restart.MaxRestarts = v
	}
	if v := envDuration("RADIOWAVE_ICECAST_RESTART_BACKOFF"); v > 0 {
		cfg.Restart.Backoff = v
	}
	cfg.applyDefaults()
	return cfg, nil
}

// parseDurations converts the policy file's duration strings into their
// typed counterparts.
func (c *Config) parseDurations() error {
	assign := func(field string, raw string, dst *time.Duration) error {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		value, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", field, err)
		}
		*dst = value
		return nil
	}
	if err := assign("readiness.initial_delay", c.Readiness.RawInitialDelay, &c.Readiness.InitialDelay); err != nil {
		return err
	}
	if err := assign("readiness.max_delay", c.Readiness.RawMaxDelay, &c.Readiness.MaxDelay); err != nil {
		return err
	}
	if err := assign("readiness.fixed_delay", c.Readiness.RawFixedDelay, &c.Readiness.FixedDelay); err != nil {
		return err
	}
	return assign("restart.backoff", c.Restart.RawBackoff, &c.Restart.Backoff)
}

// Enabled reports whether an icecast child should be managed at all. With no
// config file path set the orchestrator skips straight to serving the API.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Icecast.Config) != ""
}

func envInt(key string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func envDuration(key string) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return value
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return value, true
}
