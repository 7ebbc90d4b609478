package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scoreload/internal/core"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	if cfg.Target.BaseURL != "http://localhost:8000/api/leaderboard" {
		t.Errorf("unexpected base url %q", cfg.Target.BaseURL)
	}
	if cfg.Load.Workers != 10 || cfg.Load.Duration != 300*time.Second {
		t.Errorf("unexpected load defaults: %+v", cfg.Load)
	}
	if cfg.Target.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Target.RequestTimeout)
	}
	if cfg.Report.Interval != 10*time.Second {
		t.Errorf("expected 10s report interval, got %v", cfg.Report.Interval)
	}

	weights, err := cfg.ActionWeights()
	if err != nil {
		t.Fatal(err)
	}
	if weights[core.Submit] != 50 || weights[core.TopPlayers] != 30 || weights[core.RankLookup] != 20 {
		t.Errorf("unexpected default weights: %v", weights)
	}
}

func TestLoadConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Load.Workers != Default().Load.Workers {
		t.Errorf("expected defaults, got %+v", cfg.Load)
	}
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	content := `
target:
  base_url: "https://scores.example.com/api/leaderboard"
  game_modes: [ranked]
  request_timeout: 2s
  strict_health: true
load:
  workers: 50
  duration: 1m
  min_delay: 0s
  max_delay: 50ms
  max_rps: 200
  seed: 7
execution:
  max_iterations: 100
  warmup_iterations: 5
report:
  interval: 30s
  format: json
thresholds:
  p95:
    submit: 500ms
  error_rate: "1%"
metrics:
  listen: ":9100"
`
	cfg := loadConfigFromString(t, content)

	if cfg.Target.BaseURL != "https://scores.example.com/api/leaderboard" {
		t.Errorf("unexpected base url %q", cfg.Target.BaseURL)
	}
	if len(cfg.Target.GameModes) != 1 || cfg.Target.GameModes[0] != "ranked" {
		t.Errorf("expected game modes to be replaced, got %v", cfg.Target.GameModes)
	}
	if cfg.Target.RequestTimeout != 2*time.Second || !cfg.Target.StrictHealth {
		t.Errorf("unexpected target: %+v", cfg.Target)
	}
	if cfg.Target.ProbeTimeout != 5*time.Second {
		t.Errorf("unset probe timeout should keep its default, got %v", cfg.Target.ProbeTimeout)
	}
	if cfg.Load.Workers != 50 || cfg.Load.Duration != time.Minute || cfg.Load.MaxRPS != 200 || cfg.Load.Seed != 7 {
		t.Errorf("unexpected load: %+v", cfg.Load)
	}
	if cfg.Load.MinDelay != 0 || cfg.Load.MaxDelay != 50*time.Millisecond {
		t.Errorf("unexpected delays: %v-%v", cfg.Load.MinDelay, cfg.Load.MaxDelay)
	}
	if cfg.Execution.MaxIterations != 100 || cfg.Execution.WarmupIterations != 5 {
		t.Errorf("unexpected execution: %+v", cfg.Execution)
	}
	if cfg.Report.Format != "json" || cfg.Report.Interval != 30*time.Second || cfg.Report.Color != "auto" {
		t.Errorf("unexpected report: %+v", cfg.Report)
	}
	if cfg.Thresholds == nil || cfg.Thresholds.P95["submit"] != 500*time.Millisecond || cfg.Thresholds.ErrorRate != "1%" {
		t.Errorf("unexpected thresholds: %+v", cfg.Thresholds)
	}
	if cfg.Metrics.Listen != ":9100" {
		t.Errorf("unexpected metrics listen %q", cfg.Metrics.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config: %v", err)
	}
}

func TestLoadConfig_WeightsReplaceDefaults(t *testing.T) {
	cfg := loadConfigFromString(t, `
load:
  weights:
    rank_lookup: 1
`)

	if len(cfg.Load.Weights) != 1 || cfg.Load.Weights["rank_lookup"] != 1 {
		t.Errorf("expected weights to be replaced, got %v", cfg.Load.Weights)
	}
}

func TestLoadConfig_WeightsKeepDefaultsWhenOmitted(t *testing.T) {
	cfg := loadConfigFromString(t, "load:\n  workers: 3\n")

	if len(cfg.Load.Weights) != 3 {
		t.Errorf("expected default weights, got %v", cfg.Load.Weights)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpFile := createTempFile(t, "load:\n  workers: [not, a, number\n")

	_, err := LoadConfig(tmpFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	tmpFile := createTempFile(t, "load:\n  duration: soon\n")

	if _, err := LoadConfig(tmpFile); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Target.BaseURL = "ftp://example.com"
	cfg.Target.GameModes = nil
	cfg.Load.Workers = 0
	cfg.Load.Duration = 0
	cfg.Load.MinDelay = time.Second
	cfg.Load.MaxDelay = time.Millisecond
	cfg.Report.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{
		"target.base_url",
		"target.game_modes",
		"load.workers",
		"load.duration",
		"load.max_delay",
		"report.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error, got: %v", want, err)
		}
	}
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative base url", func(c *Config) { c.Target.BaseURL = "/api" }, "target.base_url"},
		{"bad health url", func(c *Config) { c.Target.HealthURL = "localhost/health" }, "target.health_url"},
		{"blank game mode", func(c *Config) { c.Target.GameModes = []string{"story", " "} }, "target.game_modes"},
		{"zero timeout", func(c *Config) { c.Target.RequestTimeout = 0 }, "target.request_timeout"},
		{"zero probe timeout", func(c *Config) { c.Target.ProbeTimeout = 0 }, "target.probe_timeout"},
		{"unknown action", func(c *Config) { c.Load.Weights = map[string]int{"login": 1} }, "load.weights"},
		{"zero weight", func(c *Config) { c.Load.Weights = map[string]int{"submit": 0} }, "load.weights"},
		{"no weights", func(c *Config) { c.Load.Weights = nil }, "load.weights"},
		{"duplicate weight", func(c *Config) { c.Load.Weights = map[string]int{"submit": 10, "SUBMIT": 90} }, "load.weights"},
		{"negative delay", func(c *Config) { c.Load.MinDelay = -time.Second }, "load.min_delay"},
		{"negative rps", func(c *Config) { c.Load.MaxRPS = -1 }, "load.max_rps"},
		{"negative iterations", func(c *Config) { c.Execution.MaxIterations = -1 }, "execution.max_iterations"},
		{"negative warmup", func(c *Config) { c.Execution.WarmupIterations = -1 }, "execution.warmup_iterations"},
		{"zero interval", func(c *Config) { c.Report.Interval = 0 }, "report.interval"},
		{"bad color", func(c *Config) { c.Report.Color = "rainbow" }, "report.color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error mentioning %s, got: %v", tt.field, err)
			}
		})
	}
}

func TestValidate_EqualDelaysAllowed(t *testing.T) {
	cfg := Default()
	cfg.Load.MinDelay = 0
	cfg.Load.MaxDelay = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero delay range should be valid: %v", err)
	}
}

func TestResolvedHealthURL(t *testing.T) {
	cfg := Default()
	got, err := cfg.ResolvedHealthURL()
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://localhost:8000/health" {
		t.Errorf("expected derived health url, got %q", got)
	}

	cfg.Target.HealthURL = "http://localhost:8000/status"
	if got, _ := cfg.ResolvedHealthURL(); got != "http://localhost:8000/status" {
		t.Errorf("expected override, got %q", got)
	}
}

// Helper functions

func loadConfigFromString(t *testing.T, content string) *Config {
	t.Helper()
	tmpFile := createTempFile(t, content)
	defer os.Remove(tmpFile)

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return tmpFile
}

func TestLoadPlayers(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "players.csv"), []byte("user_id\n5\n6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("load:\n  players_file: players.csv\n  players_mode: sequential\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}

	pool, err := cfg.LoadPlayers()
	if err != nil {
		t.Fatalf("players file should resolve next to the config file: %v", err)
	}
	if pool.Len() != 2 || pool.Mode() != "sequential" {
		t.Errorf("unexpected pool: len=%d mode=%s", pool.Len(), pool.Mode())
	}
}

func TestLoadPlayers_NoneConfigured(t *testing.T) {
	pool, err := Default().LoadPlayers()
	if err != nil || pool != nil {
		t.Errorf("expected no pool, got %v, %v", pool, err)
	}
}

func TestValidate_PlayersMode(t *testing.T) {
	cfg := Default()
	cfg.Load.PlayersMode = "shuffle"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "load.players_mode") {
		t.Errorf("expected players_mode error, got %v", err)
	}
}
