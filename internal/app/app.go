package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"scoreload/internal/config"
	"scoreload/internal/coordinator"
	"scoreload/internal/metrics"
)

// Exit codes of the scoreload command.
const (
	ExitOK              = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

// RunState records how the run ended. It is filled in by the goroutine
// started in Run and read by main once the app has stopped.
type RunState struct {
	mu       sync.Mutex
	outcome  *coordinator.Outcome
	err      error
	exitCode int
	finished bool
}

func NewRunState() *RunState {
	return &RunState{}
}

func (s *RunState) finish(outcome *coordinator.Outcome, err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome, s.err, s.finished = outcome, err, true
	switch {
	case err != nil:
		s.exitCode = ExitError
	case outcome.Interrupted:
		s.exitCode = ExitOK
	case outcome.Thresholds != nil && !outcome.Thresholds.Passed:
		s.exitCode = ExitThresholdFailed
	default:
		s.exitCode = ExitOK
	}
	return s.exitCode
}

// Outcome is nil until the run has finished or when it failed.
func (s *RunState) Outcome() *coordinator.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *RunState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ExitCode is ExitOK until the run has finished.
func (s *RunState) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

func (s *RunState) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// RunParams are the inputs of Run.
type RunParams struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Shutdowner  fx.Shutdowner
	Config      *config.Config
	Logger      *zap.Logger
	Coordinator *coordinator.Coordinator
	Exporter    *metrics.Exporter
	State       *RunState
}

// Run hooks the load test into the fx lifecycle. The test starts in the
// background once the app has started and shuts the app down with the
// resulting exit code. Stopping the app early is the interrupt: workers
// finish their in-flight calls and the final report is still printed.
func Run(p RunParams) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	log := p.Logger
	cfg := p.Config

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting load test",
				zap.String("base_url", cfg.Target.BaseURL),
				zap.Int("workers", cfg.Load.Workers),
				zap.Duration("duration", cfg.Load.Duration),
				zap.Any("weights", cfg.Load.Weights),
				zap.Strings("game_modes", cfg.Target.GameModes),
				zap.Duration("min_delay", cfg.Load.MinDelay),
				zap.Duration("max_delay", cfg.Load.MaxDelay),
				zap.Float64("max_rps", cfg.Load.MaxRPS),
				zap.Uint64("seed", cfg.Load.Seed),
			)

			if p.Exporter != nil {
				if err := p.Exporter.Serve(cfg.Metrics.Listen); err != nil {
					cancel()
					return fmt.Errorf("starting metrics endpoint: %w", err)
				}
			}

			go func() {
				defer close(done)

				outcome, err := p.Coordinator.Run(ctx)
				if err != nil {
					log.Error("load test aborted", zap.Error(err))
				}
				code := p.State.finish(outcome, err)
				if code == ExitThresholdFailed {
					log.Warn("thresholds failed", zap.Int("violations", len(outcome.Thresholds.Violations())))
				}

				_ = p.Shutdowner.Shutdown(fx.ExitCode(code))
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			select {
			case <-done:
			default:
				log.Info("interrupt received, waiting for in-flight requests")
			}
			cancel()

			var err error
			select {
			case <-done:
			case <-stopCtx.Done():
				err = fmt.Errorf("waiting for workers: %w", stopCtx.Err())
			}

			if p.Exporter != nil {
				if serr := p.Exporter.Shutdown(stopCtx); serr != nil {
					log.Warn("metrics endpoint shutdown", zap.Error(serr))
				}
			}
			return err
		},
	})
}
