package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scoreload/internal/core"
	"scoreload/internal/stats"
)

// Thresholds defines pass/fail criteria for a run.
type Thresholds struct {
	// P95 bounds the 95th percentile latency, keyed by action name.
	P95 map[string]time.Duration `yaml:"p95"`
	// ErrorRate bounds the overall error rate, written as a percentage ("1%").
	ErrorRate string `yaml:"error_rate"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports unknown action names and malformed percentages.
func (t *Thresholds) Validate() error {
	if t == nil {
		return nil
	}
	var errs []error
	for name, limit := range t.P95 {
		if _, err := core.ParseActionKind(name); err != nil {
			errs = append(errs, fmt.Errorf("thresholds.p95: %w", err))
		}
		if limit <= 0 {
			errs = append(errs, fmt.Errorf("thresholds.p95.%s: must be positive, got %v", name, limit))
		}
	}
	if t.ErrorRate != "" {
		if _, err := parsePercentage(t.ErrorRate); err != nil {
			errs = append(errs, fmt.Errorf("thresholds.error_rate: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Empty reports whether no threshold is configured.
func (t *Thresholds) Empty() bool {
	return t == nil || (len(t.P95) == 0 && t.ErrorRate == "")
}

// Check evaluates all thresholds against a run result.
func (t *Thresholds) Check(r stats.RunResult) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	for _, kind := range core.AllActionKinds {
		limit, ok := t.lookupP95(kind)
		if !ok {
			continue
		}
		actual := r.Action(kind).P95
		results.add(ThresholdResult{
			Name:      "p95." + kind.String(),
			Passed:    actual < limit,
			Threshold: FormatDuration(limit),
			Actual:    FormatDuration(actual),
		})
	}

	if t.ErrorRate != "" {
		results.checkErrorRate(t.ErrorRate, r)
	}

	return results
}

func (t *Thresholds) lookupP95(kind core.ActionKind) (time.Duration, bool) {
	for name, limit := range t.P95 {
		if k, err := core.ParseActionKind(name); err == nil && k == kind {
			return limit, true
		}
	}
	return 0, false
}

func (r *ThresholdResults) add(result ThresholdResult) {
	if !result.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, result)
}

func (r *ThresholdResults) checkErrorRate(threshold string, run stats.RunResult) {
	limit, err := parsePercentage(threshold)
	if err != nil {
		return
	}

	rate, ok := run.ErrorRate()
	if !ok {
		r.add(ThresholdResult{Name: "error_rate", Passed: true, Threshold: threshold, Actual: "unavailable"})
		return
	}

	actual := rate * 100
	r.add(ThresholdResult{
		Name:      "error_rate",
		Passed:    actual < limit,
		Threshold: threshold,
		Actual:    fmt.Sprintf("%.2f%%", actual),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// FormatDuration formats a threshold duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
