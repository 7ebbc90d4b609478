package core

import (
	"context"
	"math/rand/v2"
	"sync"
)

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// SampleLog is a thread-safe Recorder that keeps every sample.
type SampleLog struct {
	mu      sync.Mutex
	samples []Sample
}

func (l *SampleLog) Record(s Sample) {
	l.mu.Lock()
	l.samples = append(l.samples, s)
	l.mu.Unlock()
}

// Samples returns a copy of the recorded samples.
func (l *SampleLog) Samples() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Sample, len(l.samples))
	copy(out, l.samples)
	return out
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) Sample

func (f InvokerFunc) Invoke(ctx context.Context, req Request) Sample { return f(ctx, req) }

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(rng *rand.Rand) Request

func (f PlannerFunc) Plan(rng *rand.Rand) Request { return f(rng) }
