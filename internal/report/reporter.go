// Package report prints periodic and final run statistics and evaluates
// pass/fail thresholds.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"scoreload/internal/core"
	"scoreload/internal/stats"
)

// DefaultInterval is the period between two statistics blocks.
const DefaultInterval = 10 * time.Second

// Source provides the snapshots a Reporter prints.
type Source interface {
	Snapshot() stats.RunResult
}

type Options struct {
	Interval time.Duration
	Format   string // "text" or "json"
	Color    string // "auto", "always" or "never"
	// Progress receives the periodic blocks. Defaults to the report writer
	// for text output and to stderr for JSON, which keeps stdout parseable.
	Progress io.Writer
	Clock    core.Clock
}

// Reporter reads the aggregator on a timer and at shutdown. It never
// mutates the source.
type Reporter struct {
	source   Source
	out      io.Writer
	progress io.Writer
	interval time.Duration
	format   string
	colors   *palette
	clock    core.Clock

	mu      sync.Mutex
	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}
}

func New(source Source, out io.Writer, opts Options) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Format == "" {
		opts.Format = "text"
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	progress := opts.Progress
	if progress == nil {
		progress = out
		if opts.Format == "json" {
			progress = os.Stderr
		}
	}

	return &Reporter{
		source:   source,
		out:      out,
		progress: progress,
		interval: opts.Interval,
		format:   opts.Format,
		colors:   newPalette(colorEnabled(opts.Color, out)),
		clock:    opts.Clock,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start prints a statistics block every interval until ctx is done or Stop
// is called. Calling Start more than once has no effect.
func (r *Reporter) Start(ctx context.Context) {
	if r.started.Swap(true) {
		return
	}
	go r.run(ctx)
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.PrintPeriodic()
		}
	}
}

// Stop halts the periodic loop and waits for it to exit. It is idempotent
// and safe to call without Start.
func (r *Reporter) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	close(r.stopCh)
	if r.started.Load() {
		<-r.done
	}
}

// PrintPeriodic takes a snapshot and prints one statistics block.
func (r *Reporter) PrintPeriodic() {
	snap := r.source.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	writePeriodic(r.progress, r.colors, r.clock.Now(), snap)
}

// Final prints the final report for result, evaluates thresholds against it
// and prints their outcome. It returns the threshold results.
func (r *Reporter) Final(result stats.RunResult, thresholds *Thresholds) *ThresholdResults {
	var checked *ThresholdResults
	if !thresholds.Empty() {
		checked = thresholds.Check(result)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.format == "json" {
		FormatJSON(r.out, result, checked)
	} else {
		formatText(r.out, r.colors, result, checked)
	}

	if checked == nil {
		return &ThresholdResults{Passed: true}
	}
	return checked
}

// Printf writes a status line to the progress writer without interleaving
// with a statistics block.
func (r *Reporter) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.progress, format+"\n", args...)
}
