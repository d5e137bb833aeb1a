package stresstest

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/types"
)

const defaultBufferSize = 100

// Collector receives every request result of a run, keeps per-step
// statistics and streams samples into the results database. It is the
// executor.Observer of the run's client.
type Collector struct {
	mu         sync.Mutex
	manager    *Manager
	logger     *zap.Logger
	runID      int64
	started    time.Time
	total      *Stats
	steps      map[string]*Stats
	stepOrder  []string
	metricsBuf []*Metric
	bufferSize int
}

// NewCollector creates a collector writing to manager. A nil manager
// keeps statistics only.
func NewCollector(manager *Manager, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		manager:    manager,
		logger:     logger,
		total:      NewStats(),
		steps:      make(map[string]*Stats),
		metricsBuf: make([]*Metric, 0, defaultBufferSize),
		bufferSize: defaultBufferSize,
		started:    time.Now(),
	}
}

// Begin attaches the collector to a run record
func (c *Collector) Begin(runID int64, started time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runID = runID
	c.started = started
}

// ObserveRequest records one completed call
func (c *Collector) ObserveRequest(result *types.RequestResult) {
	isNetworkError := result.Failed()
	isHTTPFailure := result.HTTPFailed()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.total.AddResult(result.Duration, isNetworkError, isHTTPFailure)

	step, ok := c.steps[result.Step]
	if !ok {
		step = NewStats()
		c.steps[result.Step] = step
		c.stepOrder = append(c.stepOrder, result.Step)
	}
	step.AddResult(result.Duration, isNetworkError, isHTTPFailure)

	if c.manager == nil {
		return
	}

	c.metricsBuf = append(c.metricsBuf, &Metric{
		RunID:        c.runID,
		VU:           result.VU,
		Step:         result.Step,
		Method:       result.Method,
		Timestamp:    result.Timestamp,
		ElapsedMs:    result.Timestamp.Sub(c.started).Milliseconds(),
		StatusCode:   result.Status,
		DurationMs:   durationMs(result.Duration),
		RequestSize:  int64(result.RequestSize),
		ResponseSize: int64(result.ResponseSize),
		ErrorMessage: result.Error,
		HTTPFailed:   isHTTPFailure,
	})

	if len(c.metricsBuf) >= c.bufferSize {
		c.flushLocked()
	}
}

// Flush writes buffered samples to the database
func (c *Collector) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Collector) flushLocked() {
	if len(c.metricsBuf) == 0 || c.manager == nil {
		return
	}

	if err := c.manager.SaveMetricsBatch(c.metricsBuf); err != nil {
		// Log error but don't stop execution
		c.logger.Error("failed to save metrics", zap.Error(err))
	}

	c.metricsBuf = c.metricsBuf[:0]
}

// Total returns a copy of the run-wide statistics
func (c *Collector) Total() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total.Clone()
}

// Steps returns a copy of the per-step statistics in first-seen order
func (c *Collector) Steps() []StepStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]StepStats, 0, len(c.stepOrder))
	for _, name := range c.stepOrder {
		out = append(out, StepStats{Step: name, Stats: c.steps[name].Clone()})
	}
	return out
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
