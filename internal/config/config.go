// Package config handles YAML configuration parsing, defaults and
// validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scoreload/internal/action"
	"scoreload/internal/core"
	"scoreload/internal/data"
	lbhttp "scoreload/internal/http"
	"scoreload/internal/report"
)

// Config is the root configuration structure. It is treated as immutable
// once validated.
type Config struct {
	Target     TargetConfig       `yaml:"target"`
	Load       WorkloadConfig     `yaml:"load"`
	Execution  ExecutionConfig    `yaml:"execution,omitempty"`
	Report     ReportConfig       `yaml:"report"`
	Thresholds *report.Thresholds `yaml:"thresholds,omitempty"`
	Metrics    MetricsConfig      `yaml:"metrics,omitempty"`
	Log        LogConfig          `yaml:"log,omitempty"`

	// dir is the directory of the loaded file; relative paths resolve against it.
	dir string
}

// TargetConfig describes the service under test.
type TargetConfig struct {
	BaseURL string `yaml:"base_url"`
	// HealthURL overrides the health endpoint derived from BaseURL.
	HealthURL      string        `yaml:"health_url,omitempty"`
	GameModes      []string      `yaml:"game_modes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	StrictHealth   bool          `yaml:"strict_health"`
}

// WorkloadConfig shapes the generated traffic.
type WorkloadConfig struct {
	Workers  int            `yaml:"workers"`
	Duration time.Duration  `yaml:"duration"`
	Weights  map[string]int `yaml:"weights"`
	MinDelay time.Duration  `yaml:"min_delay"`
	MaxDelay time.Duration  `yaml:"max_delay"`
	MaxRPS   float64        `yaml:"max_rps"` // 0 disables the cap
	Seed     uint64         `yaml:"seed"`    // 0 picks a random seed

	// PlayersFile replaces the synthetic user id range with ids read from a
	// .csv or .json file.
	PlayersFile string `yaml:"players_file,omitempty"`
	PlayersMode string `yaml:"players_mode,omitempty"` // sequential or random
}

// ExecutionConfig controls iteration-level execution behavior.
type ExecutionConfig struct {
	MaxIterations    int `yaml:"max_iterations"`
	WarmupIterations int `yaml:"warmup_iterations"`
}

type ReportConfig struct {
	Interval time.Duration `yaml:"interval"`
	Format   string        `yaml:"format"`
	Color    string        `yaml:"color"`
}

type MetricsConfig struct {
	// Listen is the address of the Prometheus endpoint; empty disables it.
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	weights := make(map[string]int)
	for kind, w := range action.DefaultWeights() {
		weights[kind.String()] = w
	}

	return &Config{
		Target: TargetConfig{
			BaseURL:        "http://localhost:8000/api/leaderboard",
			GameModes:      []string{"story", "multiplayer"},
			RequestTimeout: 5 * time.Second,
			ProbeTimeout:   5 * time.Second,
		},
		Load: WorkloadConfig{
			Workers:  10,
			Duration: 300 * time.Second,
			Weights:  weights,
			MinDelay: 100 * time.Millisecond,
			MaxDelay: 500 * time.Millisecond,
		},
		Report: ReportConfig{
			Interval: report.DefaultInterval,
			Format:   "text",
			Color:    "auto",
		},
	}
}

// LoadConfig reads a YAML configuration file on top of Default. An empty
// path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// yaml.v3 merges into an existing map, so weights are decoded fresh and
	// only fall back to the defaults when the file leaves them out.
	defaults := cfg.Load.Weights
	cfg.Load.Weights = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Load.Weights == nil {
		cfg.Load.Weights = defaults
	}
	cfg.dir = filepath.Dir(path)

	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := validateURL("target.base_url", c.Target.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Target.HealthURL != "" {
		if err := validateURL("target.health_url", c.Target.HealthURL); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.Target.GameModes) == 0 {
		add("target.game_modes: at least one game mode is required")
	}
	for _, m := range c.Target.GameModes {
		if strings.TrimSpace(m) == "" {
			add("target.game_modes: empty game mode")
		}
	}
	if c.Target.RequestTimeout <= 0 {
		add("target.request_timeout: must be positive, got %v", c.Target.RequestTimeout)
	}
	if c.Target.ProbeTimeout <= 0 {
		add("target.probe_timeout: must be positive, got %v", c.Target.ProbeTimeout)
	}

	if c.Load.Workers < 1 {
		add("load.workers: must be at least 1, got %d", c.Load.Workers)
	}
	if c.Load.Duration <= 0 {
		add("load.duration: must be positive, got %v", c.Load.Duration)
	}
	if _, err := c.ActionWeights(); err != nil {
		add("load.weights: %w", err)
	}
	if c.Load.MinDelay < 0 {
		add("load.min_delay: must not be negative, got %v", c.Load.MinDelay)
	}
	if c.Load.MaxDelay < c.Load.MinDelay {
		add("load.max_delay: %v is below min_delay %v", c.Load.MaxDelay, c.Load.MinDelay)
	}
	if c.Load.MaxRPS < 0 {
		add("load.max_rps: must not be negative, got %v", c.Load.MaxRPS)
	}
	if _, err := data.ParseMode(c.Load.PlayersMode); err != nil {
		add("load.players_mode: %w", err)
	}

	if c.Execution.MaxIterations < 0 {
		add("execution.max_iterations: must not be negative, got %d", c.Execution.MaxIterations)
	}
	if c.Execution.WarmupIterations < 0 {
		add("execution.warmup_iterations: must not be negative, got %d", c.Execution.WarmupIterations)
	}

	if c.Report.Interval <= 0 {
		add("report.interval: must be positive, got %v", c.Report.Interval)
	}
	switch c.Report.Format {
	case "text", "json":
	default:
		add("report.format: must be text or json, got %q", c.Report.Format)
	}
	switch c.Report.Color {
	case "auto", "always", "never":
	default:
		add("report.color: must be auto, always or never, got %q", c.Report.Color)
	}

	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host in %q", field, raw)
	}
	return nil
}

// ActionWeights converts the configured weights to action.Weights.
func (c *Config) ActionWeights() (action.Weights, error) {
	if len(c.Load.Weights) == 0 {
		return nil, errors.New("at least one action weight is required")
	}
	weights := make(action.Weights, len(c.Load.Weights))
	for name, w := range c.Load.Weights {
		kind, err := core.ParseActionKind(name)
		if err != nil {
			return nil, err
		}
		if _, dup := weights[kind]; dup {
			return nil, fmt.Errorf("weight for %s is set more than once", kind)
		}
		if w <= 0 {
			return nil, fmt.Errorf("weight for %s must be positive, got %d", kind, w)
		}
		weights[kind] = w
	}
	return weights, nil
}

// LoadPlayers reads the configured player pool. It returns nil when no file
// is configured.
func (c *Config) LoadPlayers() (*data.Pool, error) {
	if c.Load.PlayersFile == "" {
		return nil, nil
	}
	mode, err := data.ParseMode(c.Load.PlayersMode)
	if err != nil {
		return nil, err
	}
	return data.LoadPool(c.Load.PlayersFile, mode, c.dir)
}

// ResolvedHealthURL returns the configured health URL, or the one derived
// from the base URL's scheme and host.
func (c *Config) ResolvedHealthURL() (string, error) {
	if c.Target.HealthURL != "" {
		return c.Target.HealthURL, nil
	}
	return lbhttp.HealthURL(c.Target.BaseURL)
}
