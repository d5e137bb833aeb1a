package stresstest

import (
	"fmt"
	"time"
)

const (
	MaxVUs        = 1000
	MaxIterations = 1000000
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusAborted   = "aborted" // setup failed, no iteration ran
	StatusFailed    = "failed"  // thresholds crossed
)

// Config describes how a scenario is driven
type Config struct {
	Scenario   string
	VUs        int
	Iterations int           // shared across all VUs; 0 with Duration set means unlimited
	Duration   time.Duration // wall clock limit; 0 means none
	RPS        float64       // iteration starts per second across all VUs; 0 means unpaced
	Thresholds map[string][]string
}

// Run is the persisted record of one execution
type Run struct {
	ID                     int64
	RunID                  string // uuid
	Scenario               string
	VUs                    int
	StartedAt              time.Time
	CompletedAt            *time.Time
	Status                 string
	Iterations             int
	IterationErrors        int
	TotalRequestsCompleted int
	TotalErrors            int
	TotalHTTPFailures      int
	ChecksPassed           int
	ChecksFailed           int
	AvgDurationMs          float64
	MinDurationMs          float64
	MaxDurationMs          float64
	P50DurationMs          float64
	P95DurationMs          float64
	P99DurationMs          float64
}

// Metric is one persisted request sample
type Metric struct {
	ID           int64
	RunID        int64
	VU           int
	Step         string
	Method       string
	Timestamp    time.Time
	ElapsedMs    int64
	StatusCode   int
	DurationMs   float64
	RequestSize  int64
	ResponseSize int64
	ErrorMessage string
	HTTPFailed   bool // counted toward http_req_failed
}

// CheckRecord is the persisted tally of one check
type CheckRecord struct {
	RunID  int64
	Group  string
	Name   string
	Passes int
	Fails  int
}

// Normalize applies defaults: one VU, and one iteration per VU when
// neither iterations nor a duration were given
func (c *Config) Normalize() {
	if c.VUs == 0 {
		c.VUs = 1
	}
	if c.Iterations == 0 && c.Duration == 0 {
		c.Iterations = c.VUs
	}
}

// Validate validates the run configuration
func (c *Config) Validate() error {
	if c.Scenario == "" {
		return fmt.Errorf("scenario is required")
	}
	if c.VUs <= 0 {
		return fmt.Errorf("vus must be greater than 0")
	}
	if c.VUs > MaxVUs {
		return fmt.Errorf("vus cannot exceed %d", MaxVUs)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations cannot be negative")
	}
	if c.Iterations > MaxIterations {
		return fmt.Errorf("iterations cannot exceed %d", MaxIterations)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	if c.Iterations == 0 && c.Duration == 0 {
		return fmt.Errorf("either iterations or duration must be set")
	}
	if c.RPS < 0 {
		return fmt.Errorf("rps cannot be negative")
	}
	if _, err := ParseThresholds(c.Thresholds); err != nil {
		return err
	}
	return nil
}

// IsRunning returns true if the run is currently in progress
func (r *Run) IsRunning() bool {
	return r.Status == StatusRunning
}

// IsCompleted returns true if the run has finished
func (r *Run) IsCompleted() bool {
	return r.Status != StatusRunning
}
