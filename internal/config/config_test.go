package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("NANOCLAW_HOME", dir)
	return dir
}

func TestLoadMissingConfigSetsNeedsOnboard(t *testing.T) {
	withHome(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.NeedsOnboard {
		t.Fatal("expected NeedsOnboard when no config.yaml exists")
	}
	if cfg.MaxConcurrent != 5 || cfg.AssistantName != "Andy" {
		t.Fatalf("expected defaults to be filled in, got %+v", cfg)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	home := withHome(t)
	cfg := defaultConfig()
	cfg.DataDir = home
	cfg.AssistantName = "Robo"
	cfg.Channels.Telegram.Token = "abc123"
	cfg.Channels.Telegram.Enabled = true

	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml to exist: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AssistantName != "Robo" {
		t.Fatalf("expected AssistantName to round-trip, got %q", got.AssistantName)
	}
	if got.Channels.Telegram.Token != "abc123" || !got.Channels.Telegram.Enabled {
		t.Fatalf("expected telegram config to round-trip, got %+v", got.Channels.Telegram)
	}
	if got.NeedsOnboard {
		t.Fatal("expected NeedsOnboard to be false once config.yaml exists")
	}
}

func TestApplyEnvOverridesSetsTokenAndEnablesChannel(t *testing.T) {
	withHome(t)
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("MAX_CONCURRENT", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "env-token" || !cfg.Channels.Telegram.Enabled {
		t.Fatalf("expected env override to set and enable telegram, got %+v", cfg.Channels.Telegram)
	}
	if cfg.MaxConcurrent != 9 {
		t.Fatalf("expected MAX_CONCURRENT override to apply, got %d", cfg.MaxConcurrent)
	}
}

func TestEnvOverrideIntIgnoresBadValue(t *testing.T) {
	withHome(t)
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("expected default to survive a non-numeric override, got %d", cfg.MaxRetries)
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	cfg := Config{}
	normalize(&cfg)
	if cfg.MaxConcurrent != 5 || cfg.MaxRetries != 5 || cfg.Timezone != "UTC" || cfg.AssistantName != "Andy" || cfg.LogLevel != "info" || cfg.MaxContextMessages != 100 {
		t.Fatalf("expected zero-value fields to be normalized to defaults, got %+v", cfg)
	}
}

func TestParseDurationWrapsFieldName(t *testing.T) {
	if _, err := ParseDuration("poll_interval", "not-a-duration"); err == nil {
		t.Fatal("expected an error for an invalid duration")
	} else if got := err.Error(); !strings.Contains(got, "poll_interval") {
		t.Fatalf("expected error to name the offending field, got %q", got)
	}

	d, err := ParseDuration("poll_interval", "2s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Seconds() != 2 {
		t.Fatalf("expected 2s, got %v", d)
	}
}
