package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/chainshadow/internal/config"
	"github.com/roach88/chainshadow/internal/journal"
	"github.com/roach88/chainshadow/internal/scenario"
	"github.com/roach88/chainshadow/internal/shadow"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Update      bool   // regenerate golden files
	Filter      string // scenario filter (glob pattern)
	Journal     string // overrides journal_path
	Metrics     string // none | prometheus | otel
	MetricsAddr string // serve /metrics after the run until interrupted
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name     string   `json:"name"`
	Pass     bool     `json:"pass"`
	Cycles   int      `json:"cycles"`
	Final    string   `json:"final_reason,omitempty"`
	Promoted int      `json:"promoted"`
	Errors   []string `json:"errors,omitempty"`
}

// SimulateResult holds the overall simulation result.
type SimulateResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario-file-or-dir>",
		Short: "Replay scripted shadow cycles",
		Long: `Replay scenario files through the executor, parity and gating path.

Each scenario runs with a deterministic clock and a fresh window store.
When <dir>/golden/<name>.golden exists the trace must match it byte for byte.
The options file, if any, is the base that each scenario's config overlays.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad options, etc.)

Examples:
  shadowctl simulate ./scenarios
  shadowctl simulate ./scenarios --filter "promote_*" --update
  shadowctl simulate ./scenarios/drift.yaml --journal ./shadow.db
  shadowctl simulate ./scenarios --metrics prometheus --metrics-addr :9102`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite decision journal (overrides journal_path)")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", MetricsNone, "metrics backend (none|prometheus|otel)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address after the run")

	return cmd
}

func runSimulate(opts *SimulateOptions, target string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := out.Logger()

	base, err := loadOptions(opts.RootOptions)
	if err != nil {
		return err
	}

	files, err := findScenarioFiles(target, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	metrics, err := newMetricsBackend(opts.Metrics)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --metrics", err)
	}
	if opts.MetricsAddr != "" && metrics.registry == nil {
		return NewExitError(ExitCommandError, "--metrics-addr requires --metrics prometheus")
	}

	runOpts := scenario.RunOptions{Sink: metrics.sink, Logger: logger}
	journalPath := opts.Journal
	if journalPath == "" {
		journalPath = base.JournalPath
	}
	if journalPath != "" {
		st, err := journal.Open(journalPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		runOpts.Journal = st
		// Sequential IDs would collide across runs in a shared journal.
		runOpts.IDs = shadow.UUIDv7Generator{}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := SimulateResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		res := simulateOne(ctx, file, base, runOpts, opts)
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := out.Render(result, func(w io.Writer) error {
		writeSimulateText(w, result)
		return nil
	}); err != nil {
		return err
	}

	metricsOut := out.Writer
	if opts.Format == "json" {
		metricsOut = out.GetErrWriter()
	}
	if err := metrics.dump(ctx, metricsOut); err != nil {
		logger.Warn("metrics dump failed", "error", err)
	}

	if opts.MetricsAddr != "" {
		if err := serveMetrics(ctx, metrics, opts.MetricsAddr, cmd); err != nil {
			return WrapExitError(ExitCommandError, "metrics server failed", err)
		}
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles returns target itself or every YAML file under it.
func findScenarioFiles(target, filter string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{target}, nil
	}

	var files []string
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func simulateOne(ctx context.Context, file string, base config.Options, runOpts scenario.RunOptions, opts *SimulateOptions) ScenarioResult {
	s, err := scenario.LoadScenarioWithBase(file, base)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := scenario.Run(ctx, s, runOpts)
	if err != nil {
		return ScenarioResult{Name: s.Name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}

	res := ScenarioResult{Name: s.Name, Pass: result.Pass, Cycles: len(result.Trace), Errors: result.Errors}
	for _, ev := range result.Trace {
		if ev.Decision.Promote {
			res.Promoted++
		}
	}
	if final, ok := result.Final(); ok {
		res.Final = final.Decision.Reason
	}

	// Journaled runs use random cycle IDs, so there is nothing stable to
	// compare against.
	if runOpts.Journal != nil {
		return res
	}

	goldenPath := goldenFilePath(file)
	if opts.Update {
		if err := updateGoldenFile(s, result, goldenPath); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return res
	}
	if _, err := os.Stat(goldenPath); errors.Is(err, os.ErrNotExist) {
		return res
	}
	match, err := compareWithGolden(s, result, goldenPath)
	switch {
	case err != nil:
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case !match:
		res.Pass = false
		res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return res
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func updateGoldenFile(s *scenario.Scenario, result *scenario.Result, goldenPath string) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	data, err := scenario.MarshalTrace(s.Name, result)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	return os.WriteFile(goldenPath, data, 0o644)
}

func compareWithGolden(s *scenario.Scenario, result *scenario.Result, goldenPath string) (bool, error) {
	want, err := os.ReadFile(goldenPath)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := scenario.MarshalTrace(s.Name, result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal current trace: %w", err)
	}
	return string(want) == string(got), nil
}

func writeSimulateText(w io.Writer, result SimulateResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s (%d cycles, %d promoted, final %s)\n", s.Name, s.Cycles, s.Promoted, s.Final)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Simulate Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

// serveMetrics exposes the run's registry until SIGINT/SIGTERM or ctx ends.
func serveMetrics(ctx context.Context, metrics *metricsBackend, addr string, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on %s/metrics. Press Ctrl-C to stop.\n", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
