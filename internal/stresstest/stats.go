package stresstest

import (
	"sort"
	"time"
)

// Stats holds request statistics for one step or the whole run
type Stats struct {
	CompletedRequests int
	ErrorCount        int // Network errors (timeouts, connection failures)
	HTTPFailureCount  int // Network errors plus unexpected 4xx/5xx
	Durations         []time.Duration
	TotalDuration     time.Duration
	MinDuration       time.Duration
	MaxDuration       time.Duration
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		Durations:   make([]time.Duration, 0, 1000),
		MinDuration: -1,
		MaxDuration: -1,
	}
}

// AddResult adds a request result to the statistics
// isNetworkError: true for connection failures, timeouts, etc.
// isHTTPFailure: true when the request counts toward http_req_failed
func (s *Stats) AddResult(d time.Duration, isNetworkError bool, isHTTPFailure bool) {
	s.CompletedRequests++
	s.TotalDuration += d
	s.Durations = append(s.Durations, d)

	if isNetworkError {
		s.ErrorCount++
	}
	if isNetworkError || isHTTPFailure {
		s.HTTPFailureCount++
	}

	if s.MinDuration == -1 || d < s.MinDuration {
		s.MinDuration = d
	}
	if s.MaxDuration == -1 || d > s.MaxDuration {
		s.MaxDuration = d
	}
}

// Avg returns the mean duration
func (s *Stats) Avg() time.Duration {
	if s.CompletedRequests == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.CompletedRequests)
}

// Min returns the minimum duration, or 0 if no results
func (s *Stats) Min() time.Duration {
	if s.MinDuration == -1 {
		return 0
	}
	return s.MinDuration
}

// Max returns the maximum duration, or 0 if no results
func (s *Stats) Max() time.Duration {
	if s.MaxDuration == -1 {
		return 0
	}
	return s.MaxDuration
}

// Percentile calculates the percentile value (p should be between 0 and 100)
func (s *Stats) Percentile(p float64) time.Duration {
	if len(s.Durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(s.Durations))
	copy(sorted, s.Durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between lower and upper
	weight := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

// P50 returns the 50th percentile (median)
func (s *Stats) P50() time.Duration {
	return s.Percentile(50)
}

// P95 returns the 95th percentile
func (s *Stats) P95() time.Duration {
	return s.Percentile(95)
}

// P99 returns the 99th percentile
func (s *Stats) P99() time.Duration {
	return s.Percentile(99)
}

// HTTPFailureRate returns the http_req_failed ratio in [0, 1]
func (s *Stats) HTTPFailureRate() float64 {
	if s.CompletedRequests == 0 {
		return 0
	}
	return float64(s.HTTPFailureCount) / float64(s.CompletedRequests)
}

// ErrorRate returns the network error rate as a percentage
func (s *Stats) ErrorRate() float64 {
	if s.CompletedRequests == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.CompletedRequests) * 100
}

// Clone returns a deep copy
func (s *Stats) Clone() *Stats {
	c := *s
	c.Durations = make([]time.Duration, len(s.Durations))
	copy(c.Durations, s.Durations)
	return &c
}

// StepStats pairs a step name with its statistics
type StepStats struct {
	Step  string
	Stats *Stats
}
