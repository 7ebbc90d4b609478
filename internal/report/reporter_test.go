package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"scoreload/internal/core"
	"scoreload/internal/stats"
)

func newTestAggregator() *stats.Aggregator {
	agg := stats.NewAggregator(nil)
	for i := 1; i <= 3; i++ {
		agg.Record(core.Sample{Kind: core.Submit, Latency: time.Duration(i) * time.Millisecond, Succeeded: true})
	}
	agg.Record(core.Sample{Kind: core.TopPlayers, Latency: 8 * time.Millisecond, Succeeded: false})
	return agg
}

func TestReporter_PeriodicTicks(t *testing.T) {
	var out core.MockWriter
	r := New(newTestAggregator(), &out, Options{Interval: 20 * time.Millisecond})

	r.Start(context.Background())
	time.Sleep(110 * time.Millisecond)
	r.Stop()

	blocks := strings.Count(out.String(), "Statistics at")
	if blocks < 2 {
		t.Errorf("expected at least 2 periodic blocks, got %d:\n%s", blocks, out.String())
	}
	if !strings.Contains(out.String(), "Total Errors: 1") {
		t.Errorf("expected error total in periodic block, got:\n%s", out.String())
	}

	// no output after Stop
	n := len(out.String())
	time.Sleep(50 * time.Millisecond)
	if len(out.String()) != n {
		t.Error("reporter kept printing after Stop")
	}
}

func TestReporter_StopsOnContextCancel(t *testing.T) {
	var out core.MockWriter
	r := New(newTestAggregator(), &out, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop on context cancel")
	}
	r.Stop()
}

func TestReporter_StopIsIdempotent(t *testing.T) {
	r := New(newTestAggregator(), &core.MockWriter{}, Options{})
	r.Stop()
	r.Stop()

	r2 := New(newTestAggregator(), &core.MockWriter{}, Options{Interval: time.Hour})
	r2.Start(context.Background())
	r2.Start(context.Background())
	r2.Stop()
	r2.Stop()
}

func TestReporter_PrintPeriodicUsesClock(t *testing.T) {
	var out bytes.Buffer
	clock := core.NewFakeClock(time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	r := New(newTestAggregator(), &out, Options{Clock: clock})

	r.PrintPeriodic()

	if !strings.Contains(out.String(), "Statistics at 09:30:00") {
		t.Errorf("expected fake clock timestamp, got:\n%s", out.String())
	}
}

func TestReporter_FinalText(t *testing.T) {
	var out bytes.Buffer
	agg := newTestAggregator()
	r := New(agg, &out, Options{})

	results := r.Final(agg.Snapshot(), &Thresholds{ErrorRate: "10%"})

	if results.Passed {
		t.Error("expected 25% error rate to fail a 10% threshold")
	}
	output := out.String()
	if !strings.Contains(output, "Total Requests: 4") || !strings.Contains(output, "Error Rate: 25.00%") {
		t.Errorf("unexpected final report:\n%s", output)
	}
	if !strings.Contains(output, "✗ error_rate < 10% (actual: 25.00%)") {
		t.Errorf("expected threshold line, got:\n%s", output)
	}
}

func TestReporter_FinalWithoutThresholdsPasses(t *testing.T) {
	var out bytes.Buffer
	agg := newTestAggregator()
	r := New(agg, &out, Options{})

	if results := r.Final(agg.Snapshot(), nil); !results.Passed {
		t.Error("expected pass without thresholds")
	}
	if strings.Contains(out.String(), "Thresholds:") {
		t.Error("threshold section should be omitted")
	}
}

func TestReporter_JSONKeepsPeriodicOffStdout(t *testing.T) {
	var out, progress bytes.Buffer
	agg := newTestAggregator()
	r := New(agg, &out, Options{Format: "json", Progress: &progress})

	r.PrintPeriodic()
	r.Printf("Target: %s", "http://localhost:8000")
	r.Final(agg.Snapshot(), nil)

	if !strings.HasPrefix(strings.TrimSpace(out.String()), "{") {
		t.Errorf("expected only JSON on the report writer, got:\n%s", out.String())
	}
	if !strings.Contains(progress.String(), "Statistics at") || !strings.Contains(progress.String(), "Target: http://localhost:8000") {
		t.Errorf("expected periodic block and status line on progress writer, got:\n%s", progress.String())
	}
}
