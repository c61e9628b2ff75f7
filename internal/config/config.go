// Package config loads the orchestrator's YAML configuration file, applies
// environment-variable overrides, and fills in defaults. It also hosts a
// file watcher (watcher.go) that reports edits to config.yaml; serve does
// not start it, so edits take effect on restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot credentials and behavior.
type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allow_from"`
}

// DiscordConfig holds Discord bot credentials and behavior.
type DiscordConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allow_from"`
}

// WhatsAppConfig holds whatsmeow device-store settings. Authentication is
// established out-of-band via `nanoclaw onboard` (QR scan), not a token.
type WhatsAppConfig struct {
	Enabled      bool     `yaml:"enabled"`
	AllowFrom    []string `yaml:"allow_from"`
	DeviceDBPath string   `yaml:"device_db_path"`
}

// ChannelsConfig groups every chat channel's settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
}

// SandboxConfig controls how the agent container is launched and bounded.
type SandboxConfig struct {
	Image            string `yaml:"image"`
	ContainerTimeout string `yaml:"container_timeout"`
	IdleTimeout      string `yaml:"idle_timeout"`
}

// TracingConfig configures the optional OpenTelemetry exporter. Left empty,
// tracing is a no-op — see internal/tracing.
type TracingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
}

// Config is the orchestrator's full runtime configuration, loaded from
// config.yaml and overridable per-field by environment variables of the
// same name (see applyEnvOverrides).
type Config struct {
	DataDir string `yaml:"data_dir"`

	MaxConcurrent       int    `yaml:"max_concurrent"`
	BaseRetryMS         int    `yaml:"base_retry_ms"`
	MaxRetries          int    `yaml:"max_retries"`
	ContainerTimeout    string `yaml:"container_timeout"`
	IdleTimeout         string `yaml:"idle_timeout"`
	PollInterval        string `yaml:"poll_interval"`
	IPCPollInterval     string `yaml:"ipc_poll_interval"`
	SchedulerInterval   string `yaml:"scheduler_interval"`
	AssistantName       string `yaml:"assistant_name"`
	MainFolder          string `yaml:"main_folder"`
	MaxContextMessages  int    `yaml:"max_context_messages"`
	Timezone            string `yaml:"timezone"`

	LogLevel string `yaml:"log_level"`

	Channels ChannelsConfig `yaml:"channels"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Tracing  TracingConfig  `yaml:"tracing"`

	// NeedsOnboard is set by Load when no config.yaml existed yet; callers
	// check it to print first-run guidance instead of a parse error.
	NeedsOnboard bool `yaml:"-"`
}

// HomeDir returns the orchestrator's data directory: $NANOCLAW_HOME if set,
// otherwise ~/.nanoclaw.
func HomeDir() string {
	if v := os.Getenv("NANOCLAW_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".nanoclaw")
}

func defaultConfig() Config {
	return Config{
		MaxConcurrent:      5,
		BaseRetryMS:        5000,
		MaxRetries:         5,
		ContainerTimeout:   "30m",
		IdleTimeout:        "5m",
		PollInterval:       "2s",
		IPCPollInterval:    "500ms",
		SchedulerInterval:  "60s",
		AssistantName:      "Andy",
		MaxContextMessages: 100,
		Timezone:           "UTC",
		LogLevel:           "info",
		Sandbox: SandboxConfig{
			Image:            "nanoclaw-sandbox:latest",
			ContainerTimeout: "30m",
			IdleTimeout:      "5m",
		},
	}
}

// Load reads config.yaml from the home directory, applies environment
// overrides, and fills unset fields with defaults. A missing config.yaml is
// not an error: NeedsOnboard is set so the caller can run first-run setup.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.DataDir = HomeDir()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create nanoclaw home: %w", err)
	}

	path := filepath.Join(cfg.DataDir, "config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		cfg.NeedsOnboard = true
	case err != nil:
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	case len(data) > 0:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// Save writes cfg back to config.yaml, used by `nanoclaw onboard` after
// interactively collecting channel credentials.
func Save(cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(cfg.DataDir, "config.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}
	return nil
}

func normalize(cfg *Config) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.BaseRetryMS <= 0 {
		cfg.BaseRetryMS = 5000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = 100
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "Andy"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// envOverride reads a string env var by name, applying fn to mutate target
// only when the var is set and non-empty.
func envOverride(name string, fn func(v string)) {
	if v := os.Getenv(name); v != "" {
		fn(v)
	}
}

func envOverrideInt(name string, fn func(v int)) {
	envOverride(name, func(v string) {
		n, err := strconv.Atoi(v)
		if err == nil {
			fn(n)
		}
	})
}

func applyEnvOverrides(cfg *Config) {
	envOverrideInt("MAX_CONCURRENT", func(v int) { cfg.MaxConcurrent = v })
	envOverrideInt("BASE_RETRY_MS", func(v int) { cfg.BaseRetryMS = v })
	envOverrideInt("MAX_RETRIES", func(v int) { cfg.MaxRetries = v })
	envOverride("CONTAINER_TIMEOUT", func(v string) { cfg.ContainerTimeout = v })
	envOverride("IDLE_TIMEOUT", func(v string) { cfg.IdleTimeout = v })
	envOverride("POLL_INTERVAL", func(v string) { cfg.PollInterval = v })
	envOverride("IPC_POLL_INTERVAL", func(v string) { cfg.IPCPollInterval = v })
	envOverride("SCHEDULER_INTERVAL", func(v string) { cfg.SchedulerInterval = v })
	envOverride("ASSISTANT_NAME", func(v string) { cfg.AssistantName = v })
	envOverride("MAIN_FOLDER", func(v string) { cfg.MainFolder = v })
	envOverrideInt("MAX_CONTEXT_MESSAGES", func(v int) { cfg.MaxContextMessages = v })
	envOverride("TIMEZONE", func(v string) { cfg.Timezone = v })
	envOverride("LOG_LEVEL", func(v string) { cfg.LogLevel = v })
	envOverride("TELEGRAM_TOKEN", func(v string) { cfg.Channels.Telegram.Token = v; cfg.Channels.Telegram.Enabled = true })
	envOverride("DISCORD_TOKEN", func(v string) { cfg.Channels.Discord.Token = v; cfg.Channels.Discord.Enabled = true })
}

// ParseDuration parses one of the config's duration-as-string fields,
// wrapping the error with the offending field name for a readable startup
// failure instead of a bare time.ParseDuration message.
func ParseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s=%q: %w", field, value, err)
	}
	return d, nil
}
