package stats

import (
	"slices"
	"time"

	"scoreload/internal/core"
)

// p95FallbackThreshold is the sample count at or below which P95 reports the
// maximum latency instead of a quantile.
const p95FallbackThreshold = 20

// ActionSummary holds latency statistics for one action kind.
type ActionSummary struct {
	Kind   core.ActionKind
	Count  int
	Failed int
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
}

// RunResult is a read-only summary computed from the aggregator.
type RunResult struct {
	Actions       []ActionSummary // one per kind, in core.AllActionKinds order
	TotalRequests int
	TotalErrors   int
	Elapsed       time.Duration
}

// ErrorRate returns errors/requests as a fraction. ok is false when no
// request has been recorded and the rate is unavailable.
func (r RunResult) ErrorRate() (rate float64, ok bool) {
	if r.TotalRequests == 0 {
		return 0, false
	}
	return float64(r.TotalErrors) / float64(r.TotalRequests), true
}

// Action returns the summary for kind.
func (r RunResult) Action(kind core.ActionKind) ActionSummary {
	for _, a := range r.Actions {
		if a.Kind == kind {
			return a
		}
	}
	return ActionSummary{Kind: kind}
}

// Summarize computes statistics for one bucket. latencies is sorted in place.
func Summarize(kind core.ActionKind, failed int, latencies []time.Duration) ActionSummary {
	s := ActionSummary{Kind: kind, Count: len(latencies), Failed: failed}
	if len(latencies) == 0 {
		return s
	}

	slices.Sort(latencies)

	var total float64
	for _, d := range latencies {
		total += float64(d)
	}

	s.Min = latencies[0]
	s.Max = latencies[len(latencies)-1]
	s.Mean = time.Duration(total / float64(len(latencies)))
	s.Median = Median(latencies)
	s.P95 = P95(latencies)
	return s
}

// Median returns the middle value of sorted, or the mean of the two middle
// values when the length is even.
func Median(sorted []time.Duration) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// P95 returns the 19th of 20 quantile cut points for more than 20 samples,
// and the maximum latency otherwise.
func P95(sorted []time.Duration) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) <= p95FallbackThreshold {
		return sorted[len(sorted)-1]
	}
	return Quantiles(sorted, 20)[18]
}

// Quantiles divides sorted into n intervals of equal probability and returns
// the n-1 cut points, using the exclusive method (positions i*(len+1)/n with
// linear interpolation). It needs at least two samples; fewer return nil.
func Quantiles(sorted []time.Duration, n int) []time.Duration {
	ld := len(sorted)
	if n < 1 || ld < 2 {
		return nil
	}

	m := ld + 1
	result := make([]time.Duration, 0, n-1)
	for i := 1; i < n; i++ {
		j := i * m / n
		// clamp to [1, ld-1] so both neighbours exist
		if j < 1 {
			j = 1
		} else if j > ld-1 {
			j = ld - 1
		}
		delta := i*m - j*n
		lo, hi := float64(sorted[j-1]), float64(sorted[j])
		q := (lo*float64(n-delta) + hi*float64(delta)) / float64(n)
		result = append(result, time.Duration(q+0.5))
	}
	return result
}
