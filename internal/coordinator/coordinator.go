// Package coordinator runs a complete load test: reachability probe, worker
// pool, periodic reporting and the final report.
package coordinator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scoreload/internal/core"
	"scoreload/internal/report"
	"scoreload/internal/stats"
)

// Prober checks that the target is reachable before any load is generated.
type Prober interface {
	Probe(ctx context.Context) error
}

// WorkerObserver is notified when workers start and stop.
type WorkerObserver interface {
	WorkerStarted()
	WorkerStopped()
}

// Options describes the pool. Worker is the template every worker is built
// from; Clock, Limiter and the delay range are shared, Rand is per worker.
type Options struct {
	// Target is shown in the start banner.
	Target  string
	Workers int
	Worker  core.WorkerConfig
	// Seed makes every worker's random stream reproducible. 0 seeds randomly.
	Seed uint64
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Prober     Prober
	Planner    core.Planner
	Invoker    core.Invoker
	Aggregator *stats.Aggregator
	// Extra receives every sample in addition to the aggregator.
	Extra      core.Recorder
	Reporter   *report.Reporter
	Thresholds *report.Thresholds
	Observer   WorkerObserver
	Logger     *zap.Logger
}

// Outcome is the result of a completed or interrupted run.
type Outcome struct {
	Result      stats.RunResult
	Thresholds  *report.ThresholdResults
	Interrupted bool
	Completed   int // workers that reached their deadline or iteration cap
	Cancelled   int // workers stopped by the interrupt
}

type Coordinator struct {
	opts   Options
	deps   Deps
	record core.Recorder
	log    *zap.Logger
	nextID atomic.Int64
}

func NewCoordinator(opts Options, deps Deps) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		opts:   opts,
		deps:   deps,
		record: core.Recorders{deps.Aggregator, deps.Extra},
		log:    log,
	}
}

// Run probes the target and, if it is reachable, drives the pool until every
// worker has stopped. Cancelling ctx is the interrupt: workers stop starting
// iterations, in-flight calls finish, and the final report is still printed.
// A failed probe returns its error before any worker starts or anything is
// printed.
func (c *Coordinator) Run(ctx context.Context) (*Outcome, error) {
	if err := c.deps.Prober.Probe(ctx); err != nil {
		return nil, err
	}

	c.printBanner()
	c.deps.Reporter.Start(ctx)
	defer c.deps.Reporter.Stop()

	var (
		g         errgroup.Group
		completed atomic.Int32
		cancelled atomic.Int32
	)

	c.log.Info("starting workers", zap.Int("workers", c.opts.Workers), zap.Duration("duration", c.opts.Worker.Duration))
	for i := 0; i < c.opts.Workers; i++ {
		w := c.newWorker()
		g.Go(func() (err error) {
			defer c.recoverPanic(w.ID(), &err)
			if c.deps.Observer != nil {
				c.deps.Observer.WorkerStarted()
				defer c.deps.Observer.WorkerStopped()
			}

			state := w.Run(ctx)
			if state == core.Cancelled {
				cancelled.Add(1)
			} else {
				completed.Add(1)
			}
			c.log.Info("worker completed",
				zap.Int("id", w.ID()),
				zap.Int("requests", w.Iterations()),
				zap.Stringer("state", state),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.log.Error("worker pool finished with errors", zap.Error(err))
	}

	c.deps.Reporter.Stop()
	result := c.deps.Aggregator.Snapshot()
	checked := c.deps.Reporter.Final(result, c.deps.Thresholds)

	return &Outcome{
		Result:      result,
		Thresholds:  checked,
		Interrupted: ctx.Err() != nil,
		Completed:   int(completed.Load()),
		Cancelled:   int(cancelled.Load()),
	}, nil
}

// mix is implemented by planners that know their selection probabilities.
type mix interface {
	Probability(kind core.ActionKind) float64
}

func (c *Coordinator) printBanner() {
	r := c.deps.Reporter
	if c.opts.Target != "" {
		r.Printf("Starting load test against %s", c.opts.Target)
	}
	r.Printf("Workers: %d, Duration: %s", c.opts.Workers, c.opts.Worker.Duration)
	if m, ok := c.deps.Planner.(mix); ok {
		parts := make([]string, 0, core.NumActionKinds)
		for _, kind := range core.AllActionKinds {
			if p := m.Probability(kind); p > 0 {
				parts = append(parts, fmt.Sprintf("%s %.0f%%", kind, p*100))
			}
		}
		r.Printf("Action mix: %s", strings.Join(parts, ", "))
	}
	r.Printf("Press Ctrl+C to stop\n")
}

func (c *Coordinator) newWorker() *core.Worker {
	id := int(c.nextID.Add(1))
	cfg := c.opts.Worker
	if c.opts.Seed != 0 {
		cfg.Rand = rand.New(rand.NewPCG(c.opts.Seed, uint64(id)))
	} else {
		cfg.Rand = nil
	}
	return core.NewWorker(id, c.deps.Planner, c.deps.Invoker, c.record, cfg)
}

// recoverPanic turns a worker panic into an error for the pool. The other
// workers keep running.
func (c *Coordinator) recoverPanic(workerID int, err *error) {
	if r := recover(); r != nil {
		c.log.Error("worker panicked", zap.Int("id", workerID), zap.Any("panic", r))
		*err = fmt.Errorf("worker %d panicked: %v", workerID, r)
	}
}
