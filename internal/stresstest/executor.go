package stresstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/executor"
)

// Flow is a scenario the runner can drive
type Flow interface {
	Name() string
	// Setup runs exactly once before any virtual user starts.
	// An error aborts the run.
	Setup(ctx context.Context) error
	// NewVU prepares the per-user state and returns its iteration
	NewVU(ctx context.Context, vu int) (func(ctx context.Context) error, error)
}

// VUTracker is told when virtual users start and stop iterating
type VUTracker interface {
	VUStarted()
	VUStopped()
	IterationDone()
}

// Summary is the outcome of a run
type Summary struct {
	Run        *Run
	Elapsed    time.Duration
	Total      *Stats
	Steps      []StepStats
	Checks     []check.Counts
	Thresholds []ThresholdResult
}

// Executor drives a Flow with a pool of virtual users
type Executor struct {
	config    Config
	flow      Flow
	manager   *Manager
	collector *Collector
	checks    *check.Recorder
	tracker   VUTracker
	logger    *zap.Logger

	thresholds []Threshold
	limiter    *rate.Limiter

	iterationsStarted atomic.Int64
	iterationsDone    atomic.Int64
	iterationErrors   atomic.Int64
	activeVUs         atomic.Int32

	mu  sync.Mutex
	run *Run
}

// Deps are the sinks a run reports into
type Deps struct {
	Manager   *Manager
	Collector *Collector
	Checks    *check.Recorder
	Tracker   VUTracker
	Logger    *zap.Logger
}

// NewExecutor validates config and prepares a run of flow
func NewExecutor(config Config, flow Flow, deps Deps) (*Executor, error) {
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	thresholds, err := ParseThresholds(config.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Collector == nil {
		deps.Collector = NewCollector(deps.Manager, deps.Logger)
	}
	if deps.Checks == nil {
		deps.Checks = check.NewRecorder(deps.Logger)
	}

	e := &Executor{
		config:     config,
		flow:       flow,
		manager:    deps.Manager,
		collector:  deps.Collector,
		checks:     deps.Checks,
		tracker:    deps.Tracker,
		logger:     deps.Logger,
		thresholds: thresholds,
	}
	if config.RPS > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RPS), 1)
	}
	return e, nil
}

// Run executes setup and then iterations until the iteration budget is
// spent, the duration elapses or ctx is cancelled. It returns
// ErrThresholdsFailed wrapped when a threshold is crossed, and the setup
// error when setup fails, in which case no iteration runs.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	run := &Run{
		RunID:     uuid.NewString(),
		Scenario:  e.flow.Name(),
		VUs:       e.config.VUs,
		StartedAt: started,
		Status:    StatusRunning,
	}
	if e.manager != nil {
		if err := e.manager.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to create run record: %w", err)
		}
	}
	e.mu.Lock()
	e.run = run
	e.mu.Unlock()
	e.collector.Begin(run.ID, started)

	logger := e.logger.With(zap.String("run_id", run.RunID), zap.String("scenario", run.Scenario))
	logger.Info("run started",
		zap.Int("vus", e.config.VUs),
		zap.Int("iterations", e.config.Iterations),
		zap.Duration("duration", e.config.Duration),
		zap.Float64("rps", e.config.RPS),
	)

	if err := e.flow.Setup(ctx); err != nil {
		logger.Error("setup failed, aborting run", zap.Error(err))
		summary := e.finalize(StatusAborted, started, nil)
		return summary, err
	}

	runCtx := ctx
	if e.config.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.Duration)
		defer cancel()
	}

	// gctx bounds the iteration loop; an iteration already started is
	// allowed to finish on ctx
	g, gctx := errgroup.WithContext(runCtx)
	for vu := 1; vu <= e.config.VUs; vu++ {
		g.Go(func() error {
			return e.virtualUser(gctx, executor.WithVU(ctx, vu), vu, logger)
		})
	}
	runErr := g.Wait()

	status := StatusCompleted
	switch {
	case runErr != nil:
		status = StatusAborted
	case ctx.Err() != nil:
		status = StatusCancelled
	}

	results, passed := EvaluateThresholds(e.thresholds, e.observations())
	if runErr == nil && status == StatusCompleted && !passed {
		status = StatusFailed
	}

	summary := e.finalize(status, started, results)
	logger.Info("run finished",
		zap.String("status", status),
		zap.Int("iterations", summary.Run.Iterations),
		zap.Duration("elapsed", summary.Elapsed),
	)

	if runErr != nil {
		return summary, runErr
	}
	if !passed {
		return summary, fmt.Errorf("%w: %d of %d crossed", ErrThresholdsFailed, countFailed(results), len(results))
	}
	return summary, nil
}

// virtualUser iterates until the budget is spent or loopCtx is done
func (e *Executor) virtualUser(loopCtx, vuCtx context.Context, vu int, logger *zap.Logger) error {
	iterate, err := e.flow.NewVU(vuCtx, vu)
	if err != nil {
		return fmt.Errorf("vu %d: %w", vu, err)
	}

	e.activeVUs.Add(1)
	if e.tracker != nil {
		e.tracker.VUStarted()
	}
	defer func() {
		e.activeVUs.Add(-1)
		if e.tracker != nil {
			e.tracker.VUStopped()
		}
	}()

	for {
		if loopCtx.Err() != nil {
			return nil
		}
		if e.config.Iterations > 0 && e.iterationsStarted.Add(1) > int64(e.config.Iterations) {
			return nil
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(loopCtx); err != nil {
				return nil
			}
		}

		if err := iterate(vuCtx); err != nil {
			e.iterationErrors.Add(1)
			logger.Warn("iteration failed", zap.Int("vu", vu), zap.Error(err))
		}
		e.iterationsDone.Add(1)
		if e.tracker != nil {
			e.tracker.IterationDone()
		}
	}
}

// ActiveVUs returns the number of virtual users currently iterating
func (e *Executor) ActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetRun returns the current run record
func (e *Executor) GetRun() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

func (e *Executor) observations() map[string]Observation {
	passes, fails := e.checks.Totals()
	total := e.collector.Total()
	return map[string]Observation{
		MetricChecks:        {Rate: e.checks.Rate(), Samples: passes + fails},
		MetricHTTPReqFailed: {Rate: total.HTTPFailureRate(), Samples: total.CompletedRequests},
	}
}

// finalize completes the run record with final statistics
func (e *Executor) finalize(status string, started time.Time, thresholds []ThresholdResult) *Summary {
	e.collector.Flush()

	total := e.collector.Total()
	passes, fails := e.checks.Totals()
	counts := e.checks.Summary()

	now := time.Now()
	e.mu.Lock()
	run := e.run
	run.CompletedAt = &now
	run.Status = status
	run.Iterations = int(e.iterationsDone.Load())
	run.IterationErrors = int(e.iterationErrors.Load())
	run.TotalRequestsCompleted = total.CompletedRequests
	run.TotalErrors = total.ErrorCount
	run.TotalHTTPFailures = total.HTTPFailureCount
	run.ChecksPassed = passes
	run.ChecksFailed = fails
	run.AvgDurationMs = durationMs(total.Avg())
	run.MinDurationMs = durationMs(total.Min())
	run.MaxDurationMs = durationMs(total.Max())
	run.P50DurationMs = durationMs(total.P50())
	run.P95DurationMs = durationMs(total.P95())
	run.P99DurationMs = durationMs(total.P99())
	e.mu.Unlock()

	if e.manager != nil {
		if err := e.manager.UpdateRun(run); err != nil {
			e.logger.Error("failed to update run record", zap.Error(err))
		}

		records := make([]CheckRecord, 0, len(counts))
		for _, c := range counts {
			records = append(records, CheckRecord{RunID: run.ID, Group: c.Group, Name: c.Name, Passes: c.Passes, Fails: c.Fails})
		}
		if err := e.manager.SaveChecks(records); err != nil {
			e.logger.Error("failed to save checks", zap.Error(err))
		}
	}

	return &Summary{
		Run:        run,
		Elapsed:    now.Sub(started),
		Total:      total,
		Steps:      e.collector.Steps(),
		Checks:     counts,
		Thresholds: thresholds,
	}
}

func countFailed(results []ThresholdResult) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

// IsThresholdFailure reports whether err came from crossed thresholds
func IsThresholdFailure(err error) bool {
	return errors.Is(err, ErrThresholdsFailed)
}
