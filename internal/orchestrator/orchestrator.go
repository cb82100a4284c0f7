// Package orchestrator drives task definitions through their lifecycle on
// the daemon and collects a Report.
//
// A run has three phases. The daemon's CLI and binary are version-checked;
// task definitions are discovered and their plugin dependencies gathered into
// one set; every dependency is loaded. Each task is then created, waited on
// until running, verified against the HTTP API, stopped and removed. A task
// failure is recorded in its Outcome and never stops the other tasks.
package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/snap-telemetry/snapharness/internal/api"
	"github.com/snap-telemetry/snapharness/internal/daemon"
	"github.com/snap-telemetry/snapharness/internal/deps"
	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/logging"
	"github.com/snap-telemetry/snapharness/internal/plugin"
	"github.com/snap-telemetry/snapharness/internal/retry"
	"github.com/snap-telemetry/snapharness/internal/taskspec"
)

// Options controls a run.
type Options struct {
	TasksDir         string // read by the harness
	TaskMount        string // where the daemon sees TasksDir
	Selector         string
	DaemonVersion    string // asserted when a strict semantic version
	SkipVersionCheck bool
	CreatePause      time.Duration
	RunningState     string
	Interactive      bool
	Parallel         int

	// Prompt I/O for interactive runs; default to the process's stdin and stdout.
	Stdin  io.Reader
	Stdout io.Writer
}

// Components are the collaborators a run drives.
type Components struct {
	FS      afero.Fs
	Reader  *taskspec.Reader
	Daemon  *daemon.Client
	API     *api.Client
	Loader  *plugin.Loader
	Tracker *retry.Tracker
	Logger  *logging.Logger
}

// Orchestrator runs task definitions against the daemon.
type Orchestrator struct {
	opts    Options
	fs      afero.Fs
	reader  *taskspec.Reader
	daemon  *daemon.Client
	api     *api.Client
	loader  *plugin.Loader
	tracker *retry.Tracker
	logger  *logging.Logger

	promptMu    sync.Mutex
	promptStart sync.Once
	lines       chan error
}

// New creates an Orchestrator.
func New(opts Options, c Components) *Orchestrator {
	if opts.TaskMount == "" {
		opts.TaskMount = opts.TasksDir
	}
	if opts.RunningState == "" {
		opts.RunningState = "Running"
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if c.FS == nil {
		c.FS = afero.NewOsFs()
	}
	if c.Reader == nil {
		c.Reader = taskspec.NewReader(c.FS, nil)
	}
	if c.Logger == nil {
		c.Logger = logging.NopLogger()
	}
	return &Orchestrator{
		opts:    opts,
		fs:      c.FS,
		reader:  c.Reader,
		daemon:  c.Daemon,
		api:     c.API,
		loader:  c.Loader,
		tracker: c.Tracker,
		logger:  c.Logger,
	}
}

// pending is a discovered task waiting to run.
type pending struct {
	index int
	def   *taskspec.Definition
	deps  []deps.Dependency
}

// Run executes one full run. The returned error is the run-level failure,
// also stored in Report.Err; per-task and per-plugin failures are only
// recorded in the Report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	return o.run(ctx, selectorLabel(o.opts.Selector), func() ([]string, error) {
		return taskspec.Discover(o.fs, o.opts.TasksDir, o.opts.Selector)
	})
}

// RunFiles executes a run limited to the named task files, relative to the
// task directory. Names are literal file names; missing files are skipped.
// Plugins loaded by earlier runs are not loaded again.
func (o *Orchestrator) RunFiles(ctx context.Context, files []string) (*Report, error) {
	if len(files) == 0 {
		return o.Run(ctx)
	}
	return o.run(ctx, strings.Join(files, ", "), func() ([]string, error) {
		return taskspec.Files(o.fs, o.opts.TasksDir, files)
	})
}

// run drives the task files returned by find; label names them in errors.
func (o *Orchestrator) run(ctx context.Context, label string, find func() ([]string, error)) (*Report, error) {
	start := time.Now()
	report := &Report{}
	if o.tracker != nil {
		o.tracker.Reset()
	}
	if o.loader != nil {
		o.loader.Refresh()
	}
	finish := func(err error) (*Report, error) {
		report.Err = err
		report.Duration = time.Since(start)
		if o.tracker != nil {
			report.Retries = o.tracker.Stats()
		}
		return report, err
	}

	if !o.opts.SkipVersionCheck {
		if err := o.checkVersions(ctx, report); err != nil {
			return finish(err)
		}
	}

	set := deps.NewSet()
	tasks, err := o.discover(set, label, find, report)
	if err != nil {
		return finish(err)
	}

	report.Plugins = o.loadPlugins(ctx, set.List())

	o.runTasks(ctx, tasks, report)
	return finish(ctx.Err())
}

// checkVersions waits for the CLI and the daemon binary to answer --version
// and asserts the configured daemon version.
func (o *Orchestrator) checkVersions(ctx context.Context, report *Report) error {
	logger := o.logger.WithPhase("version")

	res, err := o.daemon.CLIVersion(ctx)
	report.CLIVersion = firstLine(res.Stdout)
	if err != nil {
		return errors.Wrap(withOutput(err, res.Error("client version check failed", errors.ErrUnexpectedOutput)), "cli not available")
	}

	res, err = o.daemon.DaemonVersion(ctx)
	report.DaemonVersion = firstLine(res.Stdout)
	if err != nil {
		return errors.Wrap(withOutput(err, res.Error("daemon version check failed", errors.ErrUnexpectedOutput)), "daemon not available")
	}

	want := strings.TrimSpace(o.opts.DaemonVersion)
	if want == "" {
		return nil
	}
	v, err := semver.StrictNewVersion(want)
	if err != nil {
		logger.Debug("daemon version is not a release version, not asserting it", "version", want)
		return nil
	}
	if !strings.Contains(res.Stdout, v.String()) {
		return res.Error("daemon reports version other than "+v.String(), errors.ErrUnexpectedOutput)
	}
	logger.Info("daemon version confirmed", "version", v.String())
	return nil
}

// discover reads every task definition find returns. Unreadable ones become
// failed outcomes; the rest contribute their dependencies to set.
func (o *Orchestrator) discover(set *deps.Set, label string, find func() ([]string, error), report *Report) ([]pending, error) {
	files, err := find()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NewConfigError("no task definitions match "+label, errors.ErrFileNotFound).
			WithPath(o.opts.TasksDir)
	}

	report.Tasks = make([]Outcome, len(files))
	var tasks []pending
	for i, file := range files {
		logger := o.logger.WithTask(file)
		report.Tasks[i] = Outcome{File: file, Reached: StateDiscovered}

		def, err := o.reader.Read(filepath.Join(o.opts.TasksDir, filepath.FromSlash(file)), "")
		if err != nil {
			logger.Warn("cannot read task definition", "error", err)
			report.Tasks[i].Err = err
			continue
		}
		def.Name = file
		added := deps.ExtractInto(set, def)
		taskDeps := deps.Extract(def)
		logger.Debug("task definition read", "dependencies", len(taskDeps), "new", len(added))

		report.Tasks[i].Deps = taskDeps
		report.Tasks[i].Declared = def.Metrics()
		tasks = append(tasks, pending{index: i, def: def, deps: taskDeps})
	}
	return tasks, nil
}

// loadPlugins loads every dependency in order and confirms the daemon lists
// the ones that loaded.
func (o *Orchestrator) loadPlugins(ctx context.Context, all []deps.Dependency) []PluginOutcome {
	outcomes := make([]PluginOutcome, 0, len(all))
	var loaded []int
	for _, dep := range all {
		res, err := o.loader.Load(ctx, dep)
		outcomes = append(outcomes, PluginOutcome{
			Dependency: dep,
			Source:     res.Source,
			ExitStatus: res.ExitStatus,
			Err:        err,
		})
		if err == nil {
			loaded = append(loaded, len(outcomes)-1)
		}
	}
	if len(loaded) == 0 {
		return outcomes
	}

	listing, err := o.daemon.PluginList(ctx)
	if err != nil {
		err = withOutput(err, listing.Error("plugin list failed", errors.ErrUnexpectedOutput))
		for _, i := range loaded {
			outcomes[i].Err = err
		}
		return outcomes
	}
	for _, i := range loaded {
		name := outcomes[i].Dependency.Name
		if daemon.Missing(listing.Stdout, []string{name}) != nil {
			outcomes[i].Err = errors.NewVerificationError("plugin list does not mention " + name).
				WithMissing([]string{name})
			continue
		}
		outcomes[i].Listed = true
	}
	return outcomes
}

// runTasks processes tasks, concurrently when Parallel > 1. Outcomes keep
// discovery order.
func (o *Orchestrator) runTasks(ctx context.Context, tasks []pending, report *Report) {
	if o.opts.Parallel == 1 {
		for _, t := range tasks {
			if ctx.Err() != nil {
				return
			}
			o.runTask(ctx, t, &report.Tasks[t.index])
		}
		return
	}

	p := pool.New().WithMaxGoroutines(o.opts.Parallel)
	for _, t := range tasks {
		out := &report.Tasks[t.index]
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			o.runTask(ctx, t, out)
		})
	}
	p.Wait()
}

// daemonPath returns where the daemon reads a task file.
func (o *Orchestrator) daemonPath(file string) string {
	return path.Join(filepath.ToSlash(o.opts.TaskMount), file)
}

// awaitOperator blocks until the operator presses Enter. It returns
// immediately unless the run is interactive and stdin is a terminal.
func (o *Orchestrator) awaitOperator(ctx context.Context, id string) error {
	if !o.opts.Interactive {
		return nil
	}
	if f, ok := o.opts.Stdin.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return nil
	}

	o.promptMu.Lock()
	defer o.promptMu.Unlock()
	o.promptStart.Do(o.readLines)
	fmt.Fprintf(o.opts.Stdout, "Task %s is running. Press Enter to verify it...", id)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-o.lines:
		if !ok || err == nil || err == io.EOF {
			return nil
		}
		return err
	}
}

// readLines starts the one goroutine reading stdin. It sends nil for each
// line and the read error that ends input, then closes o.lines. A prompt
// abandoned on cancellation leaves its line for the next prompt.
func (o *Orchestrator) readLines() {
	lines := make(chan error, 1)
	o.lines = lines
	go func() {
		defer close(lines)
		r := bufio.NewReader(o.opts.Stdin)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				lines <- err
				return
			}
			lines <- nil
		}
	}()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withOutput attaches the last command output to a timeout so the report
// shows what the daemon last said.
func withOutput(err error, output error) error {
	var timeout *errors.TimeoutError
	if errors.As(err, &timeout) && timeout.Unwrap() == nil {
		return timeout.WithCause(output)
	}
	return err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func selectorLabel(selector string) string {
	if selector == "" {
		return taskspec.DefaultPattern
	}
	return selector
}
