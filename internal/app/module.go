// Package app wires the load generator together with fx.
package app

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"scoreload/internal/action"
	"scoreload/internal/config"
	"scoreload/internal/coordinator"
	"scoreload/internal/core"
	lbhttp "scoreload/internal/http"
	"scoreload/internal/metrics"
	"scoreload/internal/ratelimit"
	"scoreload/internal/report"
	"scoreload/internal/stats"
)

// Module provides every component of a run. The caller supplies a validated
// *config.Config, a *zap.Logger and Streams.
var Module = fx.Module("scoreload",
	fx.Provide(
		NewClock,
		NewHTTPClient,
		NewInvoker,
		NewHealthProbe,
		NewCatalog,
		NewAggregator,
		NewExporter,
		NewLimiter,
		NewReporter,
		NewCoordinator,
		NewRunState,
	),
)

// Streams are the writers the report is printed to.
type Streams struct {
	Out io.Writer
}

func NewClock() core.Clock {
	return core.RealClock{}
}

// NewHTTPClient sizes the connection pool to the number of workers.
func NewHTTPClient(cfg *config.Config) *http.Client {
	return lbhttp.NewClient(cfg.Load.Workers)
}

func NewInvoker(cfg *config.Config, client *http.Client, log *zap.Logger) *lbhttp.Invoker {
	return lbhttp.NewInvoker(cfg.Target.BaseURL, client, cfg.Target.RequestTimeout, lbhttp.NewDebugLogger(log))
}

func NewHealthProbe(cfg *config.Config, client *http.Client, log *zap.Logger) (*lbhttp.HealthProbe, error) {
	url, err := cfg.ResolvedHealthURL()
	if err != nil {
		return nil, err
	}
	return lbhttp.NewHealthProbe(url, client, cfg.Target.ProbeTimeout, cfg.Target.StrictHealth, log), nil
}

// NewCatalog draws user ids from the player pool when one is configured.
func NewCatalog(cfg *config.Config, log *zap.Logger) (*action.Catalog, error) {
	weights, err := cfg.ActionWeights()
	if err != nil {
		return nil, err
	}
	catalog, err := action.NewCatalog(weights, cfg.Target.GameModes)
	if err != nil {
		return nil, err
	}

	pool, err := cfg.LoadPlayers()
	if err != nil {
		return nil, fmt.Errorf("loading players: %w", err)
	}
	if pool == nil {
		return catalog, nil
	}
	log.Info("using player pool",
		zap.String("file", cfg.Load.PlayersFile),
		zap.Int("players", pool.Len()),
		zap.String("mode", string(pool.Mode())),
	)
	return catalog.WithUsers(pool), nil
}

func NewAggregator(clock core.Clock) *stats.Aggregator {
	return stats.NewAggregator(clock)
}

// NewExporter returns nil when no metrics address is configured.
func NewExporter(cfg *config.Config, log *zap.Logger) *metrics.Exporter {
	if cfg.Metrics.Listen == "" {
		return nil
	}
	return metrics.NewExporter(log)
}

// NewLimiter returns nil when max_rps is 0.
func NewLimiter(cfg *config.Config, log *zap.Logger) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(cfg.Load.MaxRPS, 0)
	if l != nil {
		log.Info("request rate capped", zap.Float64("rps", l.Limit()), zap.Int("burst", l.Burst()))
	}
	return l
}

func NewReporter(cfg *config.Config, agg *stats.Aggregator, streams Streams, clock core.Clock) *report.Reporter {
	return report.New(agg, streams.Out, report.Options{
		Interval: cfg.Report.Interval,
		Format:   cfg.Report.Format,
		Color:    cfg.Report.Color,
		Clock:    clock,
	})
}

// CoordinatorParams are the inputs of NewCoordinator.
type CoordinatorParams struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Clock      core.Clock
	Probe      *lbhttp.HealthProbe
	Catalog    *action.Catalog
	Invoker    *lbhttp.Invoker
	Aggregator *stats.Aggregator
	Exporter   *metrics.Exporter
	Limiter    *ratelimit.Limiter
	Reporter   *report.Reporter
}

func NewCoordinator(p CoordinatorParams) *coordinator.Coordinator {
	cfg := p.Config

	worker := core.WorkerConfig{
		Duration:      cfg.Load.Duration,
		MinDelay:      cfg.Load.MinDelay,
		MaxDelay:      cfg.Load.MaxDelay,
		MaxIterations: cfg.Execution.MaxIterations,
		WarmupIters:   cfg.Execution.WarmupIterations,
		Clock:         p.Clock,
	}
	// A typed nil must not end up inside an interface.
	if p.Limiter != nil {
		worker.Limiter = p.Limiter
	}

	deps := coordinator.Deps{
		Prober:     p.Probe,
		Planner:    p.Catalog,
		Invoker:    p.Invoker,
		Aggregator: p.Aggregator,
		Reporter:   p.Reporter,
		Thresholds: cfg.Thresholds,
		Logger:     p.Logger,
	}
	if p.Exporter != nil {
		deps.Extra = p.Exporter
		deps.Observer = p.Exporter
	}

	return coordinator.NewCoordinator(coordinator.Options{
		Target:  cfg.Target.BaseURL,
		Workers: cfg.Load.Workers,
		Worker:  worker,
		Seed:    cfg.Load.Seed,
	}, deps)
}
