package stresstest

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrThresholdsFailed is returned by Run when any threshold is crossed
var ErrThresholdsFailed = errors.New("thresholds failed")

// Threshold metrics
const (
	MetricChecks        = "checks"
	MetricHTTPReqFailed = "http_req_failed"
)

// Threshold is a parsed "rate <op> <value>" expression on a metric
type Threshold struct {
	Metric     string
	Expression string
	Op         string
	Value      float64
}

// ThresholdResult is a threshold with the observed rate. A threshold on
// a metric without samples is skipped and does not fail the run.
type ThresholdResult struct {
	Threshold
	Observed float64
	Passed   bool
	Skipped  bool
}

// Observation is the rate of a metric over its samples
type Observation struct {
	Rate    float64
	Samples int
}

var thresholdOps = []string{"<=", ">=", "==", "!=", "<", ">"}

// ParseThreshold parses an expression such as "rate == 1.00"
func ParseThreshold(metric, expr string) (Threshold, error) {
	switch metric {
	case MetricChecks, MetricHTTPReqFailed:
	default:
		return Threshold{}, fmt.Errorf("threshold on unknown metric %q", metric)
	}

	rest, ok := strings.CutPrefix(strings.TrimSpace(expr), "rate")
	if !ok {
		return Threshold{}, fmt.Errorf("threshold %q on %s: only rate is supported", expr, metric)
	}
	rest = strings.TrimSpace(rest)

	for _, op := range thresholdOps {
		valueStr, found := strings.CutPrefix(rest, op)
		if !found {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
		if err != nil {
			return Threshold{}, fmt.Errorf("threshold %q on %s: invalid value: %w", expr, metric, err)
		}
		return Threshold{Metric: metric, Expression: expr, Op: op, Value: value}, nil
	}
	return Threshold{}, fmt.Errorf("threshold %q on %s: missing comparison operator", expr, metric)
}

// ParseThresholds parses every expression, ordered by metric name
func ParseThresholds(byMetric map[string][]string) ([]Threshold, error) {
	metrics := make([]string, 0, len(byMetric))
	for metric := range byMetric {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	var out []Threshold
	for _, metric := range metrics {
		for _, expr := range byMetric[metric] {
			t, err := ParseThreshold(metric, expr)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// Evaluate compares observed against the threshold
func (t Threshold) Evaluate(observed float64) ThresholdResult {
	const epsilon = 1e-9

	var passed bool
	switch t.Op {
	case "==":
		passed = observed > t.Value-epsilon && observed < t.Value+epsilon
	case "!=":
		passed = observed <= t.Value-epsilon || observed >= t.Value+epsilon
	case "<":
		passed = observed < t.Value
	case "<=":
		passed = observed <= t.Value+epsilon
	case ">":
		passed = observed > t.Value
	case ">=":
		passed = observed >= t.Value-epsilon
	}
	return ThresholdResult{Threshold: t, Observed: observed, Passed: passed}
}

// EvaluateThresholds checks each threshold against the observation of
// its metric. Metrics with no samples are skipped.
func EvaluateThresholds(thresholds []Threshold, observed map[string]Observation) ([]ThresholdResult, bool) {
	results := make([]ThresholdResult, 0, len(thresholds))
	allPassed := true
	for _, t := range thresholds {
		obs := observed[t.Metric]
		if obs.Samples == 0 {
			results = append(results, ThresholdResult{Threshold: t, Passed: true, Skipped: true})
			continue
		}
		r := t.Evaluate(obs.Rate)
		if !r.Passed {
			allPassed = false
		}
		results = append(results, r)
	}
	return results, allPassed
}

// StrictThresholds fails the run on any failed check or failed request
func StrictThresholds() map[string][]string {
	return map[string][]string{
		MetricChecks:        {"rate == 1.00"},
		MetricHTTPReqFailed: {"rate == 0.00"},
	}
}
