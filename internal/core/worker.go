package core

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Worker.
type State int32

const (
	Idle State = iota
	Running
	Completed // deadline or iteration limit reached
	Cancelled // external interrupt
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// WorkerConfig controls a single worker loop.
type WorkerConfig struct {
	Duration      time.Duration // loop stops starting iterations after start+Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	MaxIterations int // 0 = unlimited
	WarmupIters   int // iterations before samples are recorded

	Clock   Clock      // nil = RealClock
	Rand    *rand.Rand // nil = randomly seeded
	Limiter Limiter    // nil = no rate limit
}

// Worker repeatedly plans, invokes and records actions until its deadline.
// A Worker is NOT safe for concurrent use; each goroutine must own its Worker.
type Worker struct {
	id       int
	planner  Planner
	invoker  Invoker
	recorder Recorder
	config   WorkerConfig
	clock    Clock
	rng      *rand.Rand

	iterations int
	state      atomic.Int32
}

// NewWorker creates a Worker in the Idle state.
func NewWorker(id int, planner Planner, invoker Invoker, recorder Recorder, config WorkerConfig) *Worker {
	w := &Worker{
		id:       id,
		planner:  planner,
		invoker:  invoker,
		recorder: recorder,
		config:   config,
		clock:    config.Clock,
		rng:      config.Rand,
	}
	if w.clock == nil {
		w.clock = RealClock{}
	}
	if w.rng == nil {
		w.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if w.recorder == nil {
		w.recorder = NullRecorder
	}
	return w
}

// ID returns the worker identifier.
func (w *Worker) ID() int { return w.id }

// Iterations returns how many actions the worker has invoked.
func (w *Worker) Iterations() int { return w.iterations }

// State returns the current lifecycle state. Safe to call from other goroutines.
func (w *Worker) State() State { return State(w.state.Load()) }

// Run executes the loop and returns the terminal state.
// The deadline and ctx are checked once per iteration. Cancelling ctx never
// aborts an in-flight invocation; only the invoker's own timeout bounds it.
func (w *Worker) Run(ctx context.Context) State {
	w.state.Store(int32(Running))
	deadline := w.clock.Now().Add(w.config.Duration)
	callCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return w.finish(Cancelled)
		}
		if !w.clock.Now().Before(deadline) {
			return w.finish(Completed)
		}
		if w.config.MaxIterations > 0 && w.iterations >= w.config.MaxIterations {
			return w.finish(Completed)
		}

		if w.config.Limiter != nil {
			if state, ok := w.acquire(ctx, deadline); !ok {
				return w.finish(state)
			}
		}

		req := w.planner.Plan(w.rng)
		sample := w.invoker.Invoke(callCtx, req)
		sample.Kind = req.Kind
		sample.WorkerID = w.id
		if sample.Timestamp.IsZero() {
			sample.Timestamp = w.clock.Now()
		}

		rec := w.recorder
		if w.iterations < w.config.WarmupIters {
			rec = NullRecorder
		}
		rec.Record(sample)
		w.iterations++

		if !w.pause(ctx) {
			return w.finish(Cancelled)
		}
	}
}

func (w *Worker) finish(s State) State {
	w.state.Store(int32(s))
	return s
}

// acquire waits for the limiter no longer than the run deadline. A token
// granted after the deadline does not start another iteration.
func (w *Worker) acquire(ctx context.Context, deadline time.Time) (State, bool) {
	waitCtx, cancel := context.WithTimeout(ctx, deadline.Sub(w.clock.Now()))
	defer cancel()

	err := w.config.Limiter.Wait(waitCtx)
	switch {
	case ctx.Err() != nil:
		return Cancelled, false
	case err != nil, !w.clock.Now().Before(deadline):
		return Completed, false
	}
	return Running, true
}

// pause sleeps for a uniform random delay. It returns false if ctx was
// cancelled while sleeping.
func (w *Worker) pause(ctx context.Context) bool {
	d := w.nextDelay()
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) nextDelay() time.Duration {
	lo, hi := w.config.MinDelay, w.config.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(w.rng.Int64N(int64(hi-lo)+1))
}
