package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"

	"scoreload/internal/stats"
)

var separator = strings.Repeat("=", 60)

// palette colours report text. Every colour is individually enabled or
// disabled so a report written to a buffer never carries escape codes.
type palette struct {
	title *color.Color
	label *color.Color
	ok    *color.Color
	bad   *color.Color
}

func newPalette(enabled bool) *palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return &palette{
		title: mk(color.FgCyan, color.Bold),
		label: mk(color.Bold),
		ok:    mk(color.FgGreen),
		bad:   mk(color.FgRed, color.Bold),
	}
}

// colorEnabled resolves a colour mode ("auto", "always", "never") for w.
// Auto enables colour only when w is a terminal.
func colorEnabled(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

// writePeriodic writes the periodic statistics block taken at the given time.
// Kinds without samples are omitted.
func writePeriodic(w io.Writer, p *palette, at time.Time, r stats.RunResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, p.title.Sprintf("Statistics at %s", at.Format("15:04:05")))
	fmt.Fprintln(w, separator)

	errs := fmt.Sprintf("Total Errors: %d", r.TotalErrors)
	if r.TotalErrors > 0 {
		errs = p.bad.Sprint(errs)
	}
	fmt.Fprintln(w, errs)

	for _, a := range r.Actions {
		if a.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", p.label.Sprint(a.Kind.Label()+":"))
		fmt.Fprintf(w, "  Count: %d\n", a.Count)
		fmt.Fprintf(w, "  Avg Latency: %s\n", ms(a.Mean))
		fmt.Fprintf(w, "  Median Latency: %s\n", ms(a.Median))
		fmt.Fprintf(w, "  P95 Latency: %s\n", ms(a.P95))
	}

	fmt.Fprintln(w, separator)
	fmt.Fprintln(w)
}

// FormatText writes the final report in human-readable form, followed by the
// threshold results when any were checked.
func FormatText(w io.Writer, r stats.RunResult, thresholds *ThresholdResults) {
	formatText(w, newPalette(false), r, thresholds)
}

func formatText(w io.Writer, p *palette, r stats.RunResult, thresholds *ThresholdResults) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, p.title.Sprint("FINAL STATISTICS"))
	fmt.Fprintln(w, separator)

	fmt.Fprintf(w, "\nElapsed: %v\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests: %d\n", r.TotalRequests)
	fmt.Fprintf(w, "Total Errors: %d\n", r.TotalErrors)
	if rate, ok := r.ErrorRate(); ok {
		fmt.Fprintf(w, "Error Rate: %.2f%%\n", rate*100)
	} else {
		fmt.Fprintln(w, "Error Rate: unavailable")
	}

	for _, a := range r.Actions {
		if a.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", p.label.Sprint(a.Kind.Label()+":"))
		fmt.Fprintf(w, "  Count: %d\n", a.Count)
		fmt.Fprintf(w, "  Min: %s\n", ms(a.Min))
		fmt.Fprintf(w, "  Max: %s\n", ms(a.Max))
		fmt.Fprintf(w, "  Avg: %s\n", ms(a.Mean))
		fmt.Fprintf(w, "  Median: %s\n", ms(a.Median))
		fmt.Fprintf(w, "  P95: %s\n", ms(a.P95))
	}
	fmt.Fprintln(w, separator)

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := p.ok.Sprint("✓")
			if !result.Passed {
				symbol = p.bad.Sprint("✗")
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

type jsonAction struct {
	Action   string  `json:"action"`
	Count    int     `json:"count"`
	Failed   int     `json:"failed"`
	MinMs    float64 `json:"minMs"`
	MaxMs    float64 `json:"maxMs"`
	AvgMs    float64 `json:"avgMs"`
	MedianMs float64 `json:"medianMs"`
	P95Ms    float64 `json:"p95Ms"`
}

type jsonReport struct {
	Elapsed       string            `json:"elapsed"`
	TotalRequests int               `json:"totalRequests"`
	TotalErrors   int               `json:"totalErrors"`
	ErrorRate     *float64          `json:"errorRate"` // percent, null when unavailable
	Actions       []jsonAction      `json:"actions"`
	Thresholds    *ThresholdResults `json:"thresholds,omitempty"`
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FormatJSON writes the final report as a single indented JSON document.
func FormatJSON(w io.Writer, r stats.RunResult, thresholds *ThresholdResults) {
	out := jsonReport{
		Elapsed:       r.Elapsed.Round(time.Millisecond).String(),
		TotalRequests: r.TotalRequests,
		TotalErrors:   r.TotalErrors,
		Actions:       make([]jsonAction, 0, len(r.Actions)),
		Thresholds:    thresholds,
	}
	if rate, ok := r.ErrorRate(); ok {
		pct := rate * 100
		out.ErrorRate = &pct
	}
	for _, a := range r.Actions {
		out.Actions = append(out.Actions, jsonAction{
			Action:   a.Kind.String(),
			Count:    a.Count,
			Failed:   a.Failed,
			MinMs:    toMillis(a.Min),
			MaxMs:    toMillis(a.Max),
			AvgMs:    toMillis(a.Mean),
			MedianMs: toMillis(a.Median),
			P95Ms:    toMillis(a.P95),
		})
	}

	encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(out) // stdout errors are unrecoverable
}
