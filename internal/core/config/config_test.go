package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestLimits_PresetOnly(t *testing.T) {
	cfg, err := ScrapingConfig{Preset: "small"}.Limits()
	if err != nil {
		t.Fatalf("Limits: %v", err)
	}
	if cfg.DailyBudgetLimit != 1.00 {
		t.Errorf("daily budget = %v, want the small preset's 1.00", cfg.DailyBudgetLimit)
	}
	if cfg.RequestsPerMinute != 10 {
		t.Errorf("requests/min = %d, want 10", cfg.RequestsPerMinute)
	}
}

func TestLimits_OverridesOnTopOfPreset(t *testing.T) {
	sc := ScrapingConfig{
		Preset:             "production",
		DailyBudgetLimit:   5.0,
		RequestDelay:       "250ms",
		UseReducedDataMode: boolPtr(true),
	}

	cfg, err := sc.Limits()
	if err != nil {
		t.Fatalf("Limits: %v", err)
	}
	if cfg.DailyBudgetLimit != 5.0 {
		t.Errorf("daily budget = %v, want override 5.0", cfg.DailyBudgetLimit)
	}
	if cfg.RequestDelay != 250*time.Millisecond {
		t.Errorf("request delay = %v, want 250ms", cfg.RequestDelay)
	}
	if !cfg.UseReducedDataMode {
		t.Error("reduced data mode override not applied")
	}
	// Untouched fields keep the preset's values.
	if cfg.MonthlyBudgetLimit != 250.00 {
		t.Errorf("monthly budget = %v, want the production preset's 250.00", cfg.MonthlyBudgetLimit)
	}
}

func TestLimits_ExplicitFalseBeatsPresetTrue(t *testing.T) {
	// The production preset scrapes full data; small enables reduced mode.
	sc := ScrapingConfig{
		Preset:              "small",
		UseReducedDataMode:  boolPtr(false),
		SkipRecentlyScraped: boolPtr(false),
	}

	cfg, err := sc.Limits()
	if err != nil {
		t.Fatalf("Limits: %v", err)
	}
	if cfg.UseReducedDataMode {
		t.Error("explicit false should override the preset's true")
	}
	if cfg.SkipRecentlyScraped {
		t.Error("explicit false should override the preset's true")
	}
}

func TestLimits_InvalidDuration(t *testing.T) {
	if _, err := (ScrapingConfig{Preset: "test", RequestDelay: "soon"}).Limits(); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestLimits_InvalidOverrideRejected(t *testing.T) {
	// 100/min * 60 exceeds the production preset's hourly ceiling.
	if _, err := (ScrapingConfig{Preset: "production", RequestsPerMinute: 100}).Limits(); err == nil {
		t.Fatal("expected validation to reject an inconsistent rate override")
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_TOKEN", "secret-token")

	raw := `
server:
  port: 9090
logging:
  level: debug
api:
  base_url: https://metrics.example.com
  token: ${TEST_API_TOKEN}
scraping:
  preset: small
  daily_budget_limit: 2.5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.API.Token != "secret-token" {
		t.Errorf("token = %q, want the expanded env value", cfg.API.Token)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want the 30s default", cfg.API.Timeout)
	}
	if cfg.Scraping.Preset != "small" || cfg.Scraping.DailyBudgetLimit != 2.5 {
		t.Errorf("scraping section not parsed: %+v", cfg.Scraping)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Logging.Level != "info" || cfg.Scraping.Preset != "production" {
		t.Errorf("defaults not applied: port=%d level=%s preset=%s",
			cfg.Server.Port, cfg.Logging.Level, cfg.Scraping.Preset)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
