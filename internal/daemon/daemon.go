// Package daemon wraps the telemetry daemon's command line client.
//
// Every method maps to one CLI invocation and checks the exit status and the
// text the client is documented to print. Read-only queries are polled with
// the configured retry policy; mutating commands run once.
package daemon

import (
	"bufio"
	"context"
	"strings"

	"github.com/snap-telemetry/snapharness/internal/command"
	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/logging"
	"github.com/snap-telemetry/snapharness/internal/retry"
)

// Text the CLI prints on success.
const (
	TaskCreatedText = "Task created"
	TaskStoppedText = "Task stopped"
	TaskRemovedText = "Task removed"
	taskIDPrefix    = "ID:"
)

// Options configures a Client.
type Options struct {
	CLI     string         // Client binary, e.g. "snaptel"
	Binary  string         // Daemon binary, e.g. "snapteld"
	Policy  retry.Policy   // Budget for ordinary queries
	Startup retry.Policy   // Budget for the --version checks
	Tracker *retry.Tracker // Optional attempt accounting
	Logger  *logging.Logger
}

// Client issues daemon CLI commands through a command.Runner.
type Client struct {
	runner command.Runner
	opts   Options
	logger *logging.Logger
}

// New creates a Client.
func New(runner command.Runner, opts Options) *Client {
	if opts.CLI == "" {
		opts.CLI = "snaptel"
	}
	if opts.Binary == "" {
		opts.Binary = "snapteld"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Client{runner: runner, opts: opts, logger: logger}
}

// Runner returns the runner commands are issued through.
func (c *Client) Runner() command.Runner {
	return c.runner
}

func (c *Client) cli(args ...string) []string {
	return append([]string{c.opts.CLI}, args...)
}

func (c *Client) poll(ctx context.Context, policy retry.Policy, op string, args []string) (command.Result, error) {
	return command.RunWithRetry(ctx, c.runner, policy, args,
		retry.WithOperation(op),
		retry.WithObserver(c.opts.Tracker.Observe(op)),
		retry.WithObserver(func(attempt int, ok bool) {
			if !ok {
				c.logger.Debug("attempt unsuccessful", "operation", op, "attempt", attempt)
			}
		}))
}

// once runs args a single time and requires exit status 0 and, when
// expect is non-empty, that stdout contains it.
func (c *Client) once(ctx context.Context, message, expect string, args []string) (command.Result, error) {
	res, err := c.runner.Run(ctx, args...)
	if err != nil {
		if res.Args == nil {
			res.Args = args
		}
		return res, res.Error(message, err)
	}
	if res.ExitStatus != 0 {
		return res, res.Error(message, errors.ErrNonZeroExit)
	}
	if expect != "" && !strings.Contains(res.Stdout, expect) {
		return res, res.Error(message+": expected "+expect, errors.ErrUnexpectedOutput)
	}
	return res, nil
}

// CLIVersion polls "<cli> --version" until the client answers.
func (c *Client) CLIVersion(ctx context.Context) (command.Result, error) {
	return c.poll(ctx, c.opts.Startup, c.opts.CLI+" --version", []string{c.opts.CLI, "--version"})
}

// DaemonVersion polls "<binary> --version" until the daemon binary answers.
func (c *Client) DaemonVersion(ctx context.Context) (command.Result, error) {
	return c.poll(ctx, c.opts.Startup, c.opts.Binary+" --version", []string{c.opts.Binary, "--version"})
}

// LoadPlugin runs "plugin load <path>" once. The result carries the exit
// status even when err is non-nil.
func (c *Client) LoadPlugin(ctx context.Context, path string) (command.Result, error) {
	c.logger.Info("loading plugin", "path", path)
	return c.once(ctx, "plugin load failed", "", c.cli("plugin", "load", path))
}

// PluginList polls "plugin list".
func (c *Client) PluginList(ctx context.Context) (command.Result, error) {
	return c.poll(ctx, c.opts.Policy, "plugin list", c.cli("plugin", "list"))
}

// CreateTask runs "task create -t <path>" and returns the new task's ID.
func (c *Client) CreateTask(ctx context.Context, path string) (string, command.Result, error) {
	res, err := c.once(ctx, "task create failed", TaskCreatedText, c.cli("task", "create", "-t", path))
	if err != nil {
		return "", res, err
	}
	id, err := ParseTaskID(res.Stdout)
	if err != nil {
		return "", res, res.Error("task create printed no task ID", err)
	}
	return id, res, nil
}

// TaskList polls "task list" until it answers.
func (c *Client) TaskList(ctx context.Context) (command.Result, error) {
	return c.poll(ctx, c.opts.Policy, "task list", c.cli("task", "list"))
}

// WaitForState polls "task list" until the listing shows id in state.
func (c *Client) WaitForState(ctx context.Context, id, state string) (command.Result, error) {
	op := "task list"
	args := c.cli("task", "list")
	return retry.Poll(ctx, c.opts.Policy, func(ctx context.Context) (command.Result, bool) {
		res, err := c.runner.Run(ctx, args...)
		if err != nil {
			return res, false
		}
		return res, res.Succeeded() && HasState(res.Stdout, id, state)
	},
		retry.WithOperation("waiting for task "+id+" to be "+state),
		retry.WithObserver(c.opts.Tracker.Observe(op)))
}

// StopTask runs "task stop <id>".
func (c *Client) StopTask(ctx context.Context, id string) (command.Result, error) {
	return c.once(ctx, "task stop failed", TaskStoppedText, c.cli("task", "stop", id))
}

// RemoveTask runs "task remove <id>".
func (c *Client) RemoveTask(ctx context.Context, id string) (command.Result, error) {
	return c.once(ctx, "task remove failed", TaskRemovedText, c.cli("task", "remove", id))
}

// ParseTaskID returns the value of the first line of the form "ID: <id>".
func ParseTaskID(stdout string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, taskIDPrefix); ok {
			if id := strings.TrimSpace(rest); id != "" {
				return id, nil
			}
		}
	}
	return "", errors.ErrTaskIDMissing
}

// HasState reports whether a "task list" listing shows state for id. The
// state must appear on a line mentioning id; when no line mentions id the
// whole listing is searched instead.
func HasState(listing, id, state string) bool {
	if id != "" {
		found := false
		for _, line := range strings.Split(listing, "\n") {
			if !strings.Contains(line, id) {
				continue
			}
			found = true
			if strings.Contains(line, state) {
				return true
			}
		}
		if found {
			return false
		}
	}
	return strings.Contains(listing, state)
}

// Missing returns the names that do not appear in text.
func Missing(text string, names []string) []string {
	var missing []string
	for _, name := range names {
		if !strings.Contains(text, name) {
			missing = append(missing, name)
		}
	}
	return missing
}
