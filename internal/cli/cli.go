package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/config"
	"github.com/studiowebux/authload/internal/executor"
	"github.com/studiowebux/authload/internal/fixture"
	"github.com/studiowebux/authload/internal/metrics"
	"github.com/studiowebux/authload/internal/report"
	"github.com/studiowebux/authload/internal/scenario"
	"github.com/studiowebux/authload/internal/stresstest"
)

// RunOptions contains options for running a scenario from the command line
type RunOptions struct {
	Scenario    string
	Env         *config.Env
	Options     config.Options // options file merged with flags
	OutPath     string         // results database; empty keeps it in memory
	MetricsAddr string         // serve /metrics here while running
	Logger      *zap.Logger
	Stdout      io.Writer

	// ProgressInterval logs the active virtual users this often; 0 disables
	ProgressInterval time.Duration
}

// DefaultOptions returns the options a scenario runs with when neither
// the options file nor flags say otherwise. VUs and iterations are left
// unset: the executor runs one VU and, without a duration, one iteration
// per VU.
func DefaultOptions(name string) config.Options {
	switch name {
	case scenario.NameCredentials:
		strict := stresstest.StrictThresholds()
		thresholds := make(config.Thresholds, len(strict))
		for metric, exprs := range strict {
			thresholds[metric] = exprs
		}
		return config.Options{Thresholds: thresholds}
	default:
		return config.Options{}
	}
}

// ResolveOptions merges the scenario defaults, the options file (may be
// nil) and the flags, later sources winning field by field
func ResolveOptions(name string, file *config.Options, flags config.Options) config.Options {
	options := DefaultOptions(name)
	if file != nil {
		options = options.Merge(*file)
	}
	return options.Merge(flags)
}

// Run wires the client, checks, metrics and results database, drives the
// scenario and prints the report. A non-nil error means the run must
// exit non-zero: setup aborted, a threshold was crossed or wiring failed.
func Run(ctx context.Context, opts RunOptions) (*stresstest.Summary, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Env == nil {
		return nil, errors.New("missing environment configuration")
	}
	logger := opts.Logger

	outPath := opts.OutPath
	if outPath == "" {
		outPath = stresstest.MemoryDB
	}
	manager, err := stresstest.NewManager(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	defer manager.Close()

	prom := metrics.NewCollector()
	checks := check.NewRecorder(logger, prom)
	runCollector := stresstest.NewCollector(manager, logger)

	client, err := executor.NewClient(executor.Options{
		BaseURL:        opts.Env.Host,
		APIPrefix:      opts.Env.APIPrefix,
		RequestTimeout: opts.Env.RequestTimeout,
		MaxConns:       opts.Options.VUs,
		Observer:       executor.Observers(runCollector, prom),
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	flow, err := scenario.New(opts.Scenario, scenario.Deps{
		Client:   client,
		Checks:   checks,
		Fixtures: fixture.New(nil),
		Logger:   logger,
	}, opts.Env.AdminKey)
	if err != nil {
		return nil, err
	}

	exec, err := stresstest.NewExecutor(stresstest.Config{
		Scenario:   flow.Name(),
		VUs:        opts.Options.VUs,
		Iterations: opts.Options.Iterations,
		Duration:   opts.Options.Duration,
		RPS:        opts.Options.RPS,
		Thresholds: opts.Options.Thresholds.Map(),
	}, flow, stresstest.Deps{
		Manager:   manager,
		Collector: runCollector,
		Checks:    checks,
		Tracker:   prom,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	if opts.MetricsAddr != "" {
		serveCtx, stop := context.WithCancel(context.Background())
		defer stop()
		go func() {
			if err := prom.Serve(serveCtx, opts.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("target", zap.String("base_url", client.BaseURL()))
	started := time.Now()

	var progress sync.WaitGroup
	progressCtx, stopProgress := context.WithCancel(ctx)
	if opts.ProgressInterval > 0 {
		progress.Add(1)
		go func() {
			defer progress.Done()
			reportProgress(progressCtx, exec, opts.ProgressInterval, logger)
		}()
	}
	summary, runErr := exec.Run(ctx)
	stopProgress()
	progress.Wait()

	if summary != nil {
		if err := report.Render(opts.Stdout, summary); err != nil {
			logger.Warn("failed to render report", zap.Error(err))
		}
	}
	if opts.OutPath != "" && summary != nil {
		logger.Info("results saved",
			zap.String("path", opts.OutPath),
			zap.Int64("run", summary.Run.ID),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
	return summary, runErr
}

// reportProgress logs the active virtual users every interval until ctx is done
func reportProgress(ctx context.Context, exec *stresstest.Executor, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run := exec.GetRun()
			if run == nil {
				continue
			}
			logger.Info("run progress",
				zap.String("run_id", run.RunID),
				zap.Int("active_vus", exec.ActiveVUs()),
				zap.Duration("elapsed", time.Since(run.StartedAt)),
			)
		}
	}
}

// openResults opens an existing results database written with --out
func openResults(path string) (*stresstest.Manager, error) {
	if path == "" {
		return nil, errors.New("no results database (set --out to the file written by a run)")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("results database: %w", err)
	}
	return stresstest.NewManager(path)
}

// ListRuns prints the runs stored at path, newest first. An empty
// scenarioName lists every scenario; limit 0 lists all.
func ListRuns(w io.Writer, path, scenarioName string, limit int) error {
	manager, err := openResults(path)
	if err != nil {
		return err
	}
	defer manager.Close()

	runs, err := manager.ListRuns(scenarioName, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return report.RenderRuns(w, runs)
}

// ShowRun prints the stored summary of run id
func ShowRun(w io.Writer, path string, id int64) error {
	manager, err := openResults(path)
	if err != nil {
		return err
	}
	defer manager.Close()

	summary, err := manager.LoadSummary(id)
	if err != nil {
		return err
	}
	return report.Render(w, summary)
}

// DeleteRun removes run id with its samples and check tallies
func DeleteRun(path string, id int64) error {
	manager, err := openResults(path)
	if err != nil {
		return err
	}
	defer manager.Close()

	if _, err := manager.GetRun(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %d not found", id)
		}
		return err
	}
	return manager.DeleteRun(id)
}

// PrintUser writes a generated synthetic user in format (json or yaml)
func PrintUser(w io.Writer, profile fixture.Profile, format string) error {
	user := fixture.GenerateNewUser(profile)

	output, err := formatOutput(user, format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, output)
	return err
}

// formatOutput formats v based on the output format
func formatOutput(v any, format string) (string, error) {
	switch format {
	case "", "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil

	default:
		return "", fmt.Errorf("unsupported output format %q (use json or yaml)", format)
	}
}
