package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/logging"
	"github.com/snap-telemetry/snapharness/internal/orchestrator"
	"github.com/snap-telemetry/snapharness/internal/report"
	"github.com/snap-telemetry/snapharness/internal/taskspec"
)

// errRunFailed is returned when a run completed with failures; the report
// already explains them.
var errRunFailed = errors.New("run failed")

var (
	runWatch   bool
	runVerbose bool
	runWidth   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run task definitions against the daemon",
	Long: `Run every selected task definition through its lifecycle:
load plugins, create, wait for running, verify metrics, stop and remove.

Exits non-zero when any task or plugin fails. With --watch, keeps running
and re-runs task files as they change.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.BoolP("interactive", "i", false, "pause for Enter while each task runs")
	flags.IntP("parallel", "p", 0, "number of tasks driven concurrently")
	flags.Bool("skip-version-check", false, "do not wait for or assert the daemon version")
	flags.String("api-url", "", "base URL of the daemon REST API")
	flags.BoolVarP(&runWatch, "watch", "w", false, "re-run task files when they change")
	flags.BoolVarP(&runVerbose, "verbose", "v", false, "print full error output in the report")
	flags.IntVar(&runWidth, "width", report.DefaultWidth, "report line width")

	bindFlags(flags, map[string]string{
		"interactive":        "run.interactive",
		"parallel":           "run.parallel",
		"skip-version-check": "run.skip_version_check",
		"api-url":            "daemon.api_url",
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer logger.Close()

	o, err := orchestrator.FromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := report.Options{Width: runWidth, Verbose: runVerbose}
	if !runWatch {
		return runOnce(ctx, cmd.OutOrStdout(), opts, func(ctx context.Context) (*orchestrator.Report, error) {
			return o.Run(ctx)
		})
	}
	return watch(ctx, cmd.OutOrStdout(), opts, o, cfg.Tasks.Dir, logger)
}

// runOnce executes run and prints its report. A run with failures returns
// errRunFailed.
func runOnce(ctx context.Context, w io.Writer, opts report.Options, run func(context.Context) (*orchestrator.Report, error)) error {
	r, err := run(ctx)
	if r != nil {
		if werr := report.Write(w, r, opts); werr != nil {
			return werr
		}
	}
	if err != nil && r == nil {
		return err
	}
	if r == nil || !r.OK() {
		return errRunFailed
	}
	return nil
}

// watch runs every task once, then re-runs the task files that change until
// ctx is cancelled. Failed runs are reported and do not stop watching.
func watch(ctx context.Context, w io.Writer, opts report.Options, o *orchestrator.Orchestrator, dir string, logger *logging.Logger) error {
	watcher, err := taskspec.NewWatcher(dir, taskspec.DefaultDebounce, logger)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	watcher.Start()
	defer watcher.Stop()

	failed := runOnce(ctx, w, opts, o.Run) != nil
	fmt.Fprintf(w, "\nWatching %s for changes (Ctrl+C to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			if failed {
				return errRunFailed
			}
			return nil
		case files, ok := <-watcher.Changes():
			if !ok {
				return nil
			}
			files = existing(dir, files)
			if len(files) == 0 {
				continue
			}
			fmt.Fprintf(w, "\nChanged: %s\n", strings.Join(files, ", "))
			failed = runOnce(ctx, w, opts, func(ctx context.Context) (*orchestrator.Report, error) {
				return o.RunFiles(ctx, files)
			}) != nil
		}
	}
}

// existing drops names that no longer exist in dir, so deleted files do not
// fail the next run.
func existing(dir string, names []string) []string {
	var out []string
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			out = append(out, name)
		}
	}
	return out
}
