package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

// Flags holds the command-line overrides. Only flags the user actually set
// are applied, so a config file value is never clobbered by a flag default.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath string

	baseURL        string
	healthURL      string
	gameModes      []string
	requestTimeout time.Duration
	probeTimeout   time.Duration
	strictHealth   bool

	workers  int
	duration time.Duration
	weights  map[string]int
	minDelay time.Duration
	maxDelay time.Duration
	maxRPS   float64
	seed     uint64

	playersFile string
	playersMode string

	maxIterations    int
	warmupIterations int

	reportInterval time.Duration
	format         string
	color          string

	metricsListen string
	verbose       bool
	logJSON       bool
}

// NewFlags defines every flag on a fresh FlagSet. Defaults shown in the
// usage text come from Default.
func NewFlags(name string) *Flags {
	def := Default()
	f := &Flags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	fs := f.fs

	fs.StringVarP(&f.ConfigPath, "config", "c", "", "Path to YAML config file")

	fs.StringVar(&f.baseURL, "base-url", def.Target.BaseURL, "Leaderboard API base URL")
	fs.StringVar(&f.healthURL, "health-url", "", "Health endpoint (default: scheme and host of --base-url + /health)")
	fs.StringSliceVar(&f.gameModes, "game-modes", def.Target.GameModes, "Game modes to draw from")
	fs.DurationVar(&f.requestTimeout, "timeout", def.Target.RequestTimeout, "Per-request timeout")
	fs.DurationVar(&f.probeTimeout, "probe-timeout", def.Target.ProbeTimeout, "Health probe timeout")
	fs.BoolVar(&f.strictHealth, "strict-health", false, "Abort when the health endpoint returns non-200")

	fs.IntVarP(&f.workers, "workers", "w", def.Load.Workers, "Number of concurrent workers")
	fs.DurationVarP(&f.duration, "duration", "d", def.Load.Duration, "Test duration")
	fs.StringToIntVar(&f.weights, "weights", def.Load.Weights, "Relative action weights, e.g. submit=50,top_players=30,rank_lookup=20")
	fs.DurationVar(&f.minDelay, "min-delay", def.Load.MinDelay, "Minimum pause between actions")
	fs.DurationVar(&f.maxDelay, "max-delay", def.Load.MaxDelay, "Maximum pause between actions")
	fs.Float64Var(&f.maxRPS, "max-rps", 0, "Cap on total requests per second (0 = unlimited)")
	fs.Uint64Var(&f.seed, "seed", 0, "Random seed (0 = random)")
	fs.StringVar(&f.playersFile, "players-file", "", "Draw user ids from a .csv (user_id column) or .json file")
	fs.StringVar(&f.playersMode, "players-mode", "random", "How ids are drawn from --players-file: random or sequential")

	fs.IntVar(&f.maxIterations, "max-iterations", 0, "Stop each worker after N iterations (0 = unlimited)")
	fs.IntVar(&f.warmupIterations, "warmup-iterations", 0, "Iterations per worker excluded from statistics")

	fs.DurationVar(&f.reportInterval, "report-interval", def.Report.Interval, "Interval between periodic statistics")
	fs.StringVarP(&f.format, "output", "o", def.Report.Format, "Final report format: text or json")
	fs.StringVar(&f.color, "color", def.Report.Color, "Colour output: auto, always or never")

	fs.StringVar(&f.metricsListen, "metrics-listen", "", "Expose Prometheus metrics on this address, e.g. :9100")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log every request and response")
	fs.BoolVar(&f.logJSON, "log-json", false, "Write logs as JSON")

	return f
}

// FlagSet exposes the underlying set, e.g. for usage output.
func (f *Flags) FlagSet() *pflag.FlagSet {
	return f.fs
}

func (f *Flags) Parse(args []string) error {
	return f.fs.Parse(args)
}

// Apply copies every explicitly set flag onto cfg.
func (f *Flags) Apply(cfg *Config) {
	set := f.fs.Changed

	if set("base-url") {
		cfg.Target.BaseURL = f.baseURL
	}
	if set("health-url") {
		cfg.Target.HealthURL = f.healthURL
	}
	if set("game-modes") {
		cfg.Target.GameModes = f.gameModes
	}
	if set("timeout") {
		cfg.Target.RequestTimeout = f.requestTimeout
	}
	if set("probe-timeout") {
		cfg.Target.ProbeTimeout = f.probeTimeout
	}
	if set("strict-health") {
		cfg.Target.StrictHealth = f.strictHealth
	}

	if set("workers") {
		cfg.Load.Workers = f.workers
	}
	if set("duration") {
		cfg.Load.Duration = f.duration
	}
	if set("weights") {
		cfg.Load.Weights = f.weights
	}
	if set("min-delay") {
		cfg.Load.MinDelay = f.minDelay
	}
	if set("max-delay") {
		cfg.Load.MaxDelay = f.maxDelay
	}
	if set("max-rps") {
		cfg.Load.MaxRPS = f.maxRPS
	}
	if set("seed") {
		cfg.Load.Seed = f.seed
	}
	if set("players-file") {
		// A path from the command line is relative to the working directory,
		// not to the config file.
		cfg.Load.PlayersFile = f.playersFile
		if abs, err := filepath.Abs(f.playersFile); err == nil && f.playersFile != "" {
			cfg.Load.PlayersFile = abs
		}
	}
	if set("players-mode") {
		cfg.Load.PlayersMode = f.playersMode
	}

	if set("max-iterations") {
		cfg.Execution.MaxIterations = f.maxIterations
	}
	if set("warmup-iterations") {
		cfg.Execution.WarmupIterations = f.warmupIterations
	}

	if set("report-interval") {
		cfg.Report.Interval = f.reportInterval
	}
	if set("output") {
		cfg.Report.Format = f.format
	}
	if set("color") {
		cfg.Report.Color = f.color
	}

	if set("metrics-listen") {
		cfg.Metrics.Listen = f.metricsListen
	}
	if set("verbose") {
		cfg.Log.Verbose = f.verbose
	}
	if set("log-json") {
		cfg.Log.JSON = f.logJSON
	}
}

// Resolve loads the config file named by --config and applies the flags on
// top of it. The result is not yet validated.
func (f *Flags) Resolve() (*Config, error) {
	cfg, err := LoadConfig(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)
	return cfg, nil
}
