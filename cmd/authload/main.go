package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/cli"
	"github.com/studiowebux/authload/internal/config"
	"github.com/studiowebux/authload/internal/fixture"
	"github.com/studiowebux/authload/internal/logger"
	"github.com/studiowebux/authload/internal/scenario"
	"github.com/studiowebux/authload/internal/stresstest"
)

var (
	version = "0.1.0"
)

// Exit codes
const (
	exitError           = 1
	exitThresholdFailed = 99 // same as k6
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	if stresstest.IsThresholdFailure(err) {
		return exitThresholdFailed
	}
	return exitError
}

// flags holds every command line flag of one command tree
type flags struct {
	// persistent
	host        string
	config      string
	out         string
	metricsAddr string
	logLevel    string
	progress    time.Duration

	// run options
	vus        int
	iterations int
	duration   string
	rps        float64

	// user
	userProfile string
	userOutput  string

	// runs list
	runsScenario string
	runsLimit    int
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "authload",
		Short: "Functional and load checks for the credentials and profile API",
		Long: `authload drives the authentication API with virtual users and
reports k6 style checks, latencies and thresholds.

The target comes from HOST (default http://localhost:8082) and
API_PREFIX (default /api/v1). Run options can be read from a YAML file
with --config; flags override the file.

Exit status is 99 when a threshold is crossed and 1 on any other error.

Examples:
  authload e2e                              # signup, login, refresh once
  authload load --vus 20 --duration 1m      # profile load test
  authload load --config load.yaml --rps 50 # options file plus pacing
  authload docs                             # admin docs smoke check
  authload user --profile load -o yaml      # print a synthetic user
  authload runs list --out results.db       # runs saved with --out`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&f.host, "host", "", "API origin (overrides HOST)")
	rootCmd.PersistentFlags().StringVarP(&f.config, "config", "c", "", "YAML options file (vus, iterations, duration, rps, thresholds)")
	rootCmd.PersistentFlags().StringVar(&f.out, "out", "", "Write results to this SQLite file instead of memory")
	rootCmd.PersistentFlags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().DurationVar(&f.progress, "progress", 10*time.Second, "Log run progress this often (0 disables)")

	e2eCmd := &cobra.Command{
		Use:   "e2e",
		Short: "Sign up a new user, log in and refresh the tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, f, scenario.NameCredentials)
		},
	}

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Log in, read and update the profile with many virtual users",
		Long: `Sign up one user during setup, then every virtual user logs in,
reads the profile and changes the emails on each iteration.

A 429 on login counts as a passing check and keeps the current tokens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, f, scenario.NameProfile)
		},
	}

	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Check the admin docs login page, secret and index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, f, scenario.NameDocs)
		},
	}

	for _, cmd := range []*cobra.Command{e2eCmd, loadCmd, docsCmd} {
		cmd.Flags().IntVar(&f.vus, "vus", 0, "Number of virtual users")
		cmd.Flags().IntVar(&f.iterations, "iterations", 0, "Total iterations shared by all virtual users")
		cmd.Flags().StringVar(&f.duration, "duration", "", "Run for this long (e.g. 30s, 5m)")
		cmd.Flags().Float64Var(&f.rps, "rps", 0, "Maximum iterations started per second")
	}

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Print a generated synthetic user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, ok := fixture.ProfileByName(f.userProfile)
			if !ok {
				return fmt.Errorf("unknown profile %q (use e2e or load)", f.userProfile)
			}
			return cli.PrintUser(cmd.OutOrStdout(), profile, f.userOutput)
		},
	}
	userCmd.Flags().StringVarP(&f.userProfile, "profile", "p", fixture.E2E.Name, "User profile (e2e/load)")
	userCmd.Flags().StringVarP(&f.userOutput, "output", "o", "json", "Output format (json/yaml)")

	rootCmd.AddCommand(e2eCmd, loadCmd, docsCmd, userCmd, newRunsCmd(f))
	return rootCmd
}

func newRunsCmd(f *flags) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs saved with --out",
		Long: `List, show and delete the runs stored in a results database.

Every subcommand reads the SQLite file given with --out.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListRuns(cmd.OutOrStdout(), f.out, f.runsScenario, f.runsLimit)
		},
	}
	listCmd.Flags().StringVar(&f.runsScenario, "scenario", "", "Only list runs of this scenario (e2e/load/docs)")
	listCmd.Flags().IntVar(&f.runsLimit, "limit", 20, "Maximum number of runs (0 for all)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the checks and latencies of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return cli.ShowRun(cmd.OutOrStdout(), f.out, id)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored run with its samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			if err := cli.DeleteRun(f.out, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted run %d\n", id)
			return nil
		},
	}

	runsCmd.AddCommand(listCmd, showCmd, deleteCmd)
	return runsCmd
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}

// runScenario resolves environment, options file and flags, then runs name
func runScenario(cmd *cobra.Command, f *flags, name string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if f.host != "" {
		env.Host = f.host
	}
	if f.logLevel != "" {
		env.LogLevel = f.logLevel
	}

	log, err := logger.New(env.LogLevel, env.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	var fileOptions *config.Options
	if f.config != "" {
		fileOptions, err = config.LoadOptions(f.config)
		if err != nil {
			return err
		}
	}

	flagOptions, err := optionsFromFlags(cmd, f)
	if err != nil {
		return err
	}
	options := cli.ResolveOptions(name, fileOptions, flagOptions)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("resolved options",
		zap.String("scenario", name),
		zap.Int("vus", options.VUs),
		zap.Int("iterations", options.Iterations),
		zap.Duration("duration", options.Duration),
		zap.Float64("rps", options.RPS),
	)

	_, err = cli.Run(ctx, cli.RunOptions{
		Scenario:         name,
		Env:              env,
		Options:          options,
		OutPath:          f.out,
		MetricsAddr:      f.metricsAddr,
		Logger:           log,
		Stdout:           cmd.OutOrStdout(),
		ProgressInterval: f.progress,
	})
	return err
}

// optionsFromFlags collects the run options set on the command line
func optionsFromFlags(cmd *cobra.Command, f *flags) (config.Options, error) {
	var opts config.Options
	if cmd.Flags().Changed("vus") {
		opts.VUs = f.vus
	}
	if cmd.Flags().Changed("iterations") {
		opts.Iterations = f.iterations
	}
	if cmd.Flags().Changed("rps") {
		opts.RPS = f.rps
	}
	if f.duration != "" {
		d, err := time.ParseDuration(f.duration)
		if err != nil {
			return opts, fmt.Errorf("invalid --duration: %w", err)
		}
		opts.Duration = d
	}
	return opts, opts.Validate()
}
