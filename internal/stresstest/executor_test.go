package stresstest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/executor"
)

// fakeFlow counts calls and lets each test decide the iteration body
type fakeFlow struct {
	setupErr  error
	newVUErr  error
	setups    atomic.Int32
	iters     atomic.Int32
	iterate   func(ctx context.Context, vu int) error
	mu        sync.Mutex
	vusSeen   map[int]int
}

func (f *fakeFlow) Name() string { return "fake" }

func (f *fakeFlow) Setup(ctx context.Context) error {
	f.setups.Add(1)
	return f.setupErr
}

func (f *fakeFlow) NewVU(ctx context.Context, vu int) (func(ctx context.Context) error, error) {
	if f.newVUErr != nil {
		return nil, f.newVUErr
	}
	return func(ctx context.Context) error {
		f.iters.Add(1)
		f.mu.Lock()
		if f.vusSeen == nil {
			f.vusSeen = make(map[int]int)
		}
		f.vusSeen[executor.VUFromContext(ctx)]++
		f.mu.Unlock()
		if f.iterate != nil {
			return f.iterate(ctx, vu)
		}
		return nil
	}, nil
}

type countingTracker struct {
	started, stopped, done atomic.Int32
}

func (c *countingTracker) VUStarted()     { c.started.Add(1) }
func (c *countingTracker) VUStopped()     { c.stopped.Add(1) }
func (c *countingTracker) IterationDone() { c.done.Add(1) }

func createTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(MemoryDB)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestExecutor_IterationBudgetSharedAcrossVUs(t *testing.T) {
	flow := &fakeFlow{}
	tracker := &countingTracker{}
	manager := createTestManager(t)

	e, err := NewExecutor(Config{Scenario: "fake", VUs: 4, Iterations: 10}, flow, Deps{
		Manager: manager,
		Tracker: tracker,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), flow.setups.Load())
	assert.Equal(t, int32(10), flow.iters.Load())
	assert.Equal(t, 10, summary.Run.Iterations)
	assert.Equal(t, StatusCompleted, summary.Run.Status)
	assert.NotEmpty(t, summary.Run.RunID)

	assert.Equal(t, int32(4), tracker.started.Load())
	assert.Equal(t, int32(4), tracker.stopped.Load())
	assert.Equal(t, int32(10), tracker.done.Load())
	assert.Equal(t, 0, e.ActiveVUs())

	for vu := range flow.vusSeen {
		assert.True(t, vu >= 1 && vu <= 4, "vu id %d", vu)
	}

	stored, err := manager.GetRun(summary.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, 10, stored.Iterations)
	assert.NotNil(t, stored.CompletedAt)
}

func TestExecutor_DefaultsToOneIterationPerVU(t *testing.T) {
	flow := &fakeFlow{}
	e, err := NewExecutor(Config{Scenario: "fake", VUs: 3}, flow, Deps{})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), flow.iters.Load())
}

func TestExecutor_SetupFailurePreventsIterations(t *testing.T) {
	setupErr := errors.New("setup failed: signup returned status 500")
	flow := &fakeFlow{setupErr: setupErr}
	manager := createTestManager(t)

	e, err := NewExecutor(Config{Scenario: "fake", VUs: 5, Iterations: 50}, flow, Deps{Manager: manager})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, setupErr)

	assert.Equal(t, int32(0), flow.iters.Load())
	assert.Equal(t, StatusAborted, summary.Run.Status)
	assert.Equal(t, 0, summary.Run.Iterations)

	stored, err := manager.GetRun(summary.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, stored.Status)
}

func TestExecutor_NewVUFailureAbortsRun(t *testing.T) {
	vuErr := errors.New("no session")
	flow := &fakeFlow{newVUErr: vuErr}

	e, err := NewExecutor(Config{Scenario: "fake", VUs: 2, Iterations: 4}, flow, Deps{})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, vuErr)
	assert.Equal(t, StatusAborted, summary.Run.Status)
	assert.Equal(t, int32(0), flow.iters.Load())
}

func TestExecutor_IterationErrorsAreCounted(t *testing.T) {
	flow := &fakeFlow{iterate: func(ctx context.Context, vu int) error {
		return errors.New("boom")
	}}

	e, err := NewExecutor(Config{Scenario: "fake", VUs: 2, Iterations: 6}, flow, Deps{})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Run.Iterations)
	assert.Equal(t, 6, summary.Run.IterationErrors)
}

func TestExecutor_DurationStopsNewIterations(t *testing.T) {
	flow := &fakeFlow{iterate: func(ctx context.Context, vu int) error {
		time.Sleep(10 * time.Millisecond)
		// in-flight iterations keep a live context after the deadline
		return ctx.Err()
	}}

	e, err := NewExecutor(Config{Scenario: "fake", VUs: 2, Duration: 100 * time.Millisecond}, flow, Deps{})
	require.NoError(t, err)

	start := time.Now()
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StatusCompleted, summary.Run.Status)
	assert.Greater(t, summary.Run.Iterations, 2)
	assert.Equal(t, 0, summary.Run.IterationErrors)
}

func TestExecutor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flow := &fakeFlow{}
	flow.iterate = func(context.Context, int) error {
		if flow.iters.Load() >= 5 {
			cancel()
		}
		return nil
	}

	e, err := NewExecutor(Config{Scenario: "fake", VUs: 1, Duration: time.Minute}, flow, Deps{})
	require.NoError(t, err)

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, summary.Run.Status)
	assert.Equal(t, 5, summary.Run.Iterations)
}

func TestExecutor_RateLimit(t *testing.T) {
	flow := &fakeFlow{}

	e, err := NewExecutor(Config{Scenario: "fake", VUs: 4, Iterations: 6, RPS: 50}, flow, Deps{})
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	// burst of 1 then 5 more at 50/s
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(6), flow.iters.Load())
}

func TestExecutor_ChecksThresholdFails(t *testing.T) {
	checks := check.NewRecorder(zap.NewNop())
	var n atomic.Int32
	flow := &fakeFlow{iterate: func(ctx context.Context, vu int) error {
		g := checks.Group(ctx, "group")
		g.Check("always", true, "")
		g.Check("sometimes", n.Add(1)%2 == 0, "odd iteration")
		return nil
	}}
	manager := createTestManager(t)

	e, err := NewExecutor(Config{
		Scenario:   "fake",
		VUs:        2,
		Iterations: 2,
		Thresholds: StrictThresholds(),
	}, flow, Deps{Manager: manager, Checks: checks})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsThresholdFailure(err))
	assert.Equal(t, StatusFailed, summary.Run.Status)

	require.Len(t, summary.Thresholds, 2)
	for _, r := range summary.Thresholds {
		switch r.Metric {
		case MetricChecks:
			assert.False(t, r.Passed)
			assert.InDelta(t, 0.75, r.Observed, 1e-9)
		case MetricHTTPReqFailed:
			assert.True(t, r.Passed)
		}
	}

	stored, err := manager.GetChecks(summary.Run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "always", stored[0].Name)
	assert.Equal(t, 2, stored[0].Passes)
	assert.Equal(t, 1, stored[1].Fails)
}

func TestExecutor_CollectsHTTPRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/credentials/login":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/api/v1/ptd/profiles/me":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	manager := createTestManager(t)
	collector := NewCollector(manager, zap.NewNop())
	client, err := executor.NewClient(executor.Options{BaseURL: server.URL, MaxConns: 2, Observer: collector})
	require.NoError(t, err)

	flow := &fakeFlow{iterate: func(ctx context.Context, vu int) error {
		if _, err := client.Login(ctx, "login", "u", "p", http.StatusTooManyRequests); err != nil {
			return err
		}
		_, err := client.GetProfile(ctx, "profile", "tok")
		return err
	}}

	e, err := NewExecutor(Config{
		Scenario:   "fake",
		VUs:        2,
		Iterations: 4,
		Thresholds: map[string][]string{MetricHTTPReqFailed: {"rate < 0.60"}},
	}, flow, Deps{Manager: manager, Collector: collector})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Total.CompletedRequests)
	// 429 on login is allowed, 401 on profile is not
	assert.Equal(t, 4, summary.Total.HTTPFailureCount)
	assert.InDelta(t, 0.5, summary.Total.HTTPFailureRate(), 1e-9)

	require.Len(t, summary.Steps, 2)
	assert.Equal(t, "login", summary.Steps[0].Step)
	assert.Equal(t, 0, summary.Steps[0].Stats.HTTPFailureCount)
	assert.Equal(t, 4, summary.Steps[1].Stats.HTTPFailureCount)

	metrics, err := manager.GetMetrics(summary.Run.ID)
	require.NoError(t, err)
	require.Len(t, metrics, 8)
	for _, m := range metrics {
		assert.Equal(t, summary.Run.ID, m.RunID)
		assert.True(t, m.VU == 1 || m.VU == 2)
	}

	stored, err := manager.GetRun(summary.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stored.TotalRequestsCompleted)
	assert.Equal(t, 4, stored.TotalHTTPFailures)
}

func TestNewExecutor_InvalidConfig(t *testing.T) {
	tests := []Config{
		{Scenario: "", VUs: 1, Iterations: 1},
		{Scenario: "x", VUs: MaxVUs + 1, Iterations: 1},
		{Scenario: "x", VUs: 1, Iterations: -1},
		{Scenario: "x", VUs: 1, Iterations: 1, RPS: -1},
		{Scenario: "x", VUs: 1, Iterations: 1, Thresholds: map[string][]string{"checks": {"avg < 3"}}},
	}
	for _, cfg := range tests {
		_, err := NewExecutor(cfg, &fakeFlow{}, Deps{})
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestExecutor_CancelledBeforeAnyCheckDoesNotCrossThresholds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flow := &fakeFlow{iterate: func(context.Context, int) error {
		cancel()
		return nil
	}}

	e, err := NewExecutor(Config{
		Scenario:   "fake",
		VUs:        1,
		Duration:   time.Minute,
		Thresholds: StrictThresholds(),
	}, flow, Deps{})
	require.NoError(t, err)

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.False(t, IsThresholdFailure(err))
	assert.Equal(t, StatusCancelled, summary.Run.Status)

	require.Len(t, summary.Thresholds, 2)
	for _, r := range summary.Thresholds {
		assert.True(t, r.Skipped, r.Metric)
	}
}
