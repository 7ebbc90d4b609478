package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"
)

func fixedPlanner(kind ActionKind) Planner {
	return PlannerFunc(func(*rand.Rand) Request {
		return Request{Kind: kind, Params: Params{UserID: 1, GameMode: "story"}}
	})
}

func TestWorker_StopsAtDeadline(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		clock.Advance(300 * time.Millisecond)
		return Sample{Latency: 300 * time.Millisecond, Succeeded: true}
	})
	log := &SampleLog{}

	w := NewWorker(1, fixedPlanner(Submit), invoker, log, WorkerConfig{
		Duration: time.Second,
		Clock:    clock,
	})

	state := w.Run(context.Background())

	if state != Completed {
		t.Errorf("expected Completed, got %v", state)
	}
	// iterations start at 0ms, 300ms, 600ms, 900ms; the check at 1200ms stops the loop
	if w.Iterations() != 4 {
		t.Errorf("expected 4 iterations, got %d", w.Iterations())
	}
	if len(log.Samples()) != 4 {
		t.Errorf("expected 4 samples, got %d", len(log.Samples()))
	}
	if w.State() != Completed {
		t.Errorf("State() = %v, expected Completed", w.State())
	}
}

func TestWorker_DeadlineRespectedWithRealClock(t *testing.T) {
	const (
		duration = 50 * time.Millisecond
		latency  = 10 * time.Millisecond
		maxDelay = 5 * time.Millisecond
	)
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		time.Sleep(latency)
		return Sample{Latency: latency, Succeeded: true}
	})

	w := NewWorker(1, fixedPlanner(TopPlayers), invoker, &SampleLog{}, WorkerConfig{
		Duration: duration,
		MinDelay: time.Millisecond,
		MaxDelay: maxDelay,
	})

	start := time.Now()
	w.Run(context.Background())
	elapsed := time.Since(start)

	// scheduling slack on top of the documented bound
	if limit := duration + latency + maxDelay + 30*time.Millisecond; elapsed > limit {
		t.Errorf("worker ran for %v, expected at most %v", elapsed, limit)
	}
	if w.Iterations() == 0 {
		t.Error("expected at least one iteration")
	}
}

func TestWorker_MaxIterations(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		return Sample{Succeeded: true}
	})
	log := &SampleLog{}

	w := NewWorker(1, fixedPlanner(Submit), invoker, log, WorkerConfig{
		Duration:      time.Hour,
		MaxIterations: 3,
	})

	if state := w.Run(context.Background()); state != Completed {
		t.Errorf("expected Completed, got %v", state)
	}
	if len(log.Samples()) != 3 {
		t.Errorf("expected 3 samples, got %d", len(log.Samples()))
	}
}

func TestWorker_WarmupExcludesSamples(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		return Sample{Succeeded: true}
	})
	log := &SampleLog{}

	w := NewWorker(1, fixedPlanner(Submit), invoker, log, WorkerConfig{
		Duration:      time.Hour,
		MaxIterations: 5,
		WarmupIters:   2,
	})
	w.Run(context.Background())

	if w.Iterations() != 5 {
		t.Errorf("expected 5 iterations, got %d", w.Iterations())
	}
	if len(log.Samples()) != 3 {
		t.Errorf("expected 3 samples (excluding warmup), got %d", len(log.Samples()))
	}
}

func TestWorker_StampsSamples(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		return Sample{Succeeded: false, Error: "boom"}
	})
	log := &SampleLog{}

	w := NewWorker(42, fixedPlanner(RankLookup), invoker, log, WorkerConfig{
		Duration:      time.Hour,
		MaxIterations: 1,
	})
	w.Run(context.Background())

	samples := log.Samples()
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	s := samples[0]
	if s.WorkerID != 42 || s.Kind != RankLookup || s.Timestamp.IsZero() {
		t.Errorf("sample not stamped: %+v", s)
	}
}

func TestWorker_CancelledBeforeStart(t *testing.T) {
	var calls int
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		calls++
		return Sample{Succeeded: true}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(1, fixedPlanner(Submit), invoker, nil, WorkerConfig{Duration: time.Hour})
	if state := w.Run(ctx); state != Cancelled {
		t.Errorf("expected Cancelled, got %v", state)
	}
	if calls != 0 {
		t.Errorf("expected no invocations, got %d", calls)
	}
}

func TestWorker_CancelDuringDelay(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		return Sample{Succeeded: true}
	})
	log := &SampleLog{}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(1, fixedPlanner(Submit), invoker, log, WorkerConfig{
		Duration: time.Hour,
		MinDelay: 10 * time.Second,
		MaxDelay: 10 * time.Second,
	})

	done := make(chan State)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case state := <-done:
		if state != Cancelled {
			t.Errorf("expected Cancelled, got %v", state)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	if len(log.Samples()) != 1 {
		t.Errorf("expected exactly 1 sample, got %d", len(log.Samples()))
	}
}

func TestWorker_CancelDoesNotAbortInFlightCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var callErr error

	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		close(started)
		<-release
		callErr = ctx.Err()
		return Sample{Succeeded: true}
	})
	log := &SampleLog{}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(1, fixedPlanner(Submit), invoker, log, WorkerConfig{Duration: time.Hour})

	done := make(chan State)
	go func() { done <- w.Run(ctx) }()

	<-started
	cancel()
	close(release)

	if state := <-done; state != Cancelled {
		t.Errorf("expected Cancelled, got %v", state)
	}
	if callErr != nil {
		t.Errorf("in-flight call saw cancelled context: %v", callErr)
	}
	if len(log.Samples()) != 1 {
		t.Errorf("in-flight sample was lost: got %d samples", len(log.Samples()))
	}
}

type limiterFunc func(ctx context.Context) error

func (f limiterFunc) Wait(ctx context.Context) error { return f(ctx) }

func TestWorker_LimiterErrorStopsWorker(t *testing.T) {
	var calls int
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		calls++
		return Sample{}
	})

	w := NewWorker(1, fixedPlanner(Submit), invoker, nil, WorkerConfig{
		Duration: time.Hour,
		Limiter:  limiterFunc(func(context.Context) error { return errors.New("would exceed deadline") }),
	})

	if state := w.Run(context.Background()); state != Completed {
		t.Errorf("expected Completed, got %v", state)
	}
	if calls != 0 {
		t.Errorf("expected no invocations, got %d", calls)
	}
}

func TestWorker_TokenGrantedAfterDeadlineIsNotUsed(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var calls int
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		calls++
		return Sample{Succeeded: true}
	})
	// the first token is immediate, the second arrives after the deadline
	var waits int
	limiter := limiterFunc(func(context.Context) error {
		waits++
		if waits > 1 {
			clock.Advance(2 * time.Second)
		}
		return nil
	})

	w := NewWorker(1, fixedPlanner(Submit), invoker, nil, WorkerConfig{
		Duration: time.Second,
		Clock:    clock,
		Limiter:  limiter,
	})

	if state := w.Run(context.Background()); state != Completed {
		t.Errorf("expected Completed, got %v", state)
	}
	if calls != 1 {
		t.Errorf("expected 1 invocation, got %d", calls)
	}
}

func TestWorker_LimiterWaitBoundedByDeadline(t *testing.T) {
	const duration = 30 * time.Millisecond
	var calls int
	invoker := InvokerFunc(func(ctx context.Context, req Request) Sample {
		calls++
		return Sample{Succeeded: true}
	})
	blocking := limiterFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	w := NewWorker(1, fixedPlanner(Submit), invoker, nil, WorkerConfig{
		Duration: duration,
		Limiter:  blocking,
	})

	done := make(chan State)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case state := <-done:
		if state != Completed {
			t.Errorf("expected Completed, got %v", state)
		}
	case <-time.After(time.Second):
		t.Fatal("limiter wait outlived the deadline")
	}
	if calls != 0 {
		t.Errorf("expected no invocations, got %d", calls)
	}
}

func TestWorker_CancelDuringLimiterWait(t *testing.T) {
	blocking := limiterFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	w := NewWorker(1, fixedPlanner(Submit), nil, nil, WorkerConfig{
		Duration: time.Hour,
		Limiter:  blocking,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if state := <-done; state != Cancelled {
		t.Errorf("expected Cancelled, got %v", state)
	}
}

func TestWorker_DelayWithinRange(t *testing.T) {
	w := NewWorker(1, fixedPlanner(Submit), nil, nil, WorkerConfig{
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 500 * time.Millisecond,
		Rand:     rand.New(rand.NewPCG(1, 2)),
	})

	for i := 0; i < 1000; i++ {
		d := w.nextDelay()
		if d < 100*time.Millisecond || d > 500*time.Millisecond {
			t.Fatalf("delay %v outside [100ms, 500ms]", d)
		}
	}
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{
		Idle: "idle", Running: "running", Completed: "completed", Cancelled: "cancelled", State(9): "unknown",
	} {
		if state.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", state, state.String(), want)
		}
	}
}
