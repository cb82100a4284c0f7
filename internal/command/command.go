// Package command runs daemon CLI invocations and captures their output.
//
// Invocations go through an optional argv prefix so the same harness can
// reach a daemon on the host ("") or inside a container
// ("docker compose exec -T snap").
package command

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/logging"
	"github.com/snap-telemetry/snapharness/internal/retry"
)

// ExitNotStarted is the exit status recorded when a process could not be started.
const ExitNotStarted = -1

// Result is the captured outcome of one invocation.
type Result struct {
	Args       []string
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Succeeded reports whether the invocation exited 0 and printed something.
// An empty stdout counts as failure: the daemon's CLI prints nothing when it
// could not reach the daemon.
func (r Result) Succeeded() bool {
	return r.ExitStatus == 0 && strings.TrimSpace(r.Stdout) != ""
}

// Error converts a result into a *errors.CommandError carrying its output.
func (r Result) Error(message string, cause error) *errors.CommandError {
	return errors.NewCommandError(message, cause).
		WithArgs(r.Args).
		WithExitStatus(r.ExitStatus).
		WithOutput(r.Stdout, r.Stderr)
}

// Runner executes a command. A non-zero exit is reported through
// Result.ExitStatus; the error is reserved for failures to run at all.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// ExecRunner runs commands as local processes.
type ExecRunner struct {
	prefix []string
	logger *logging.Logger
}

// NewExecRunner creates an ExecRunner. prefix is split with shell quoting
// rules and placed before every invocation.
func NewExecRunner(prefix string, logger *logging.Logger) (*ExecRunner, error) {
	parts, err := shlex.Split(prefix)
	if err != nil {
		return nil, errors.NewConfigError("invalid exec prefix "+prefix+": "+err.Error(), errors.ErrInvalidInput)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ExecRunner{prefix: parts, logger: logger}, nil
}

// Args returns the full argv that Run would execute for args.
func (r *ExecRunner) Args(args ...string) []string {
	full := make([]string, 0, len(r.prefix)+len(args))
	full = append(full, r.prefix...)
	return append(full, args...)
}

// Run executes args with the prefix applied.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (Result, error) {
	argv := r.Args(args...)
	if len(argv) == 0 {
		return Result{ExitStatus: ExitNotStarted}, errors.Wrap(errors.ErrInvalidInput, "empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Args:   argv,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitStatus = 0
	case errors.As(err, &exitErr):
		result.ExitStatus = exitErr.ExitCode()
	default:
		result.ExitStatus = ExitNotStarted
		r.logger.Debug("command failed to start", "args", argv, "error", err)
		return result, errors.Wrapf(err, "cannot run %s", argv[0])
	}

	r.logger.Debug("command finished", "args", argv, "exit", result.ExitStatus)
	return result, nil
}

// RunWithRetry runs args until Result.Succeeded or the policy's budget is
// spent. The last result is always returned; err is a *errors.TimeoutError
// when the budget ran out. A process that cannot be started is retried like
// any other failure.
func RunWithRetry(ctx context.Context, runner Runner, policy retry.Policy, args []string, opts ...retry.Option) (Result, error) {
	opts = append([]retry.Option{retry.WithOperation(strings.Join(args, " "))}, opts...)
	return retry.Poll(ctx, policy, func(ctx context.Context) (Result, bool) {
		result, err := runner.Run(ctx, args...)
		if err != nil {
			if result.Args == nil {
				result.Args = args
			}
			result.ExitStatus = ExitNotStarted
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
			return result, false
		}
		return result, result.Succeeded()
	}, opts...)
}
