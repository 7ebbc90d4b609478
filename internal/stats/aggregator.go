// Package stats accumulates latency samples per action kind and computes
// summary statistics from consistent snapshots.
package stats

import (
	"sync"
	"time"

	"scoreload/internal/core"
)

// bucket holds the samples of one action kind. count, failed and latencies
// change together under mu, so len(latencies) == count at every snapshot.
type bucket struct {
	mu        sync.Mutex
	count     int
	failed    int
	latencies []time.Duration
}

// Aggregator is the shared, thread-safe accumulator used by all workers.
// Record locks only the sample's bucket; Snapshot copies each bucket under
// its lock and computes statistics outside it.
type Aggregator struct {
	buckets [core.NumActionKinds]bucket
	clock   core.Clock
	start   time.Time
}

// NewAggregator creates an empty Aggregator. A nil clock uses core.RealClock.
func NewAggregator(clock core.Clock) *Aggregator {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Aggregator{clock: clock, start: clock.Now()}
}

// Record adds one sample. Samples with an unknown kind are ignored.
func (a *Aggregator) Record(s core.Sample) {
	if s.Kind < 0 || int(s.Kind) >= core.NumActionKinds {
		return
	}
	latency := s.Latency
	if latency < 0 {
		latency = 0
	}

	b := &a.buckets[s.Kind]
	b.mu.Lock()
	b.latencies = append(b.latencies, latency)
	b.count++
	if !s.Succeeded {
		b.failed++
	}
	b.mu.Unlock()
}

// Count returns the number of samples recorded for kind.
func (a *Aggregator) Count(kind core.ActionKind) int {
	b := &a.buckets[kind]
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Snapshot computes a RunResult. Each bucket is internally consistent; buckets
// are read one after another, so concurrent writers may land between them.
func (a *Aggregator) Snapshot() RunResult {
	result := RunResult{
		Actions: make([]ActionSummary, 0, core.NumActionKinds),
		Elapsed: a.clock.Since(a.start),
	}

	for _, kind := range core.AllActionKinds {
		latencies, failed := a.copyBucket(kind)
		summary := Summarize(kind, failed, latencies)

		result.Actions = append(result.Actions, summary)
		result.TotalRequests += summary.Count
		result.TotalErrors += summary.Failed
	}
	return result
}

func (a *Aggregator) copyBucket(kind core.ActionKind) ([]time.Duration, int) {
	b := &a.buckets[kind]
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]time.Duration, len(b.latencies))
	copy(out, b.latencies)
	return out, b.failed
}
