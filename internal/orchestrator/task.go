package orchestrator

import (
	"context"
	"time"

	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/logging"
)

// runTask drives one task through its lifecycle, recording progress in out.
func (o *Orchestrator) runTask(ctx context.Context, t pending, out *Outcome) {
	start := time.Now()
	logger := o.logger.WithTask(out.File)
	defer func() {
		out.Duration = time.Since(start)
		if out.Err != nil {
			logger.Warn("task failed", "reached", out.Reached.String(), "category", errors.Category(out.Err), "error", out.Err)
		} else {
			logger.Info("task passed", "duration", out.Duration.String())
		}
	}()

	// Failed loads were recorded at plugin level; the daemon rejects the
	// task authoritatively if it needed them.
	for _, dep := range t.deps {
		if _, err := o.loader.Load(ctx, dep); err != nil {
			logger.Debug("dependency unavailable", "plugin", dep.String(), "error", err)
		}
	}
	out.Reached = StatePluginsLoaded

	run := &TaskRun{Definition: t.def}
	id, res, err := o.daemon.CreateTask(ctx, o.daemonPath(out.File))
	if err != nil {
		out.Err = err
		return
	}
	run.ID = id
	out.TaskID = id
	out.Reached = StateCreated
	logger = logger.WithTaskID(id)
	logger.Info("task created", "stdout", firstLine(res.Stdout))

	if err := o.advance(ctx, run, out, logger); err != nil {
		out.Err = err
		out.Cleanup = o.cleanup(ctx, run, out, logger)
	}
}

// advance moves a created task from Created to Removed.
func (o *Orchestrator) advance(ctx context.Context, run *TaskRun, out *Outcome, logger *logging.Logger) error {
	if err := sleep(ctx, o.opts.CreatePause); err != nil {
		return err
	}

	listing, err := o.daemon.WaitForState(ctx, run.ID, o.opts.RunningState)
	if err != nil {
		return withOutput(err, listing.Error("task never reported "+o.opts.RunningState, errors.ErrUnexpectedOutput))
	}
	out.Reached = StateRunning
	logger.WithPhase(StateRunning.String()).Debug("task running")

	if err := o.awaitOperator(ctx, run.ID); err != nil {
		return err
	}

	observed, err := o.observedMetrics(ctx, run.ID)
	out.Observed = observed
	if err != nil {
		return err
	}
	if err := CompareMetrics(run.Definition.Metrics(), observed); err != nil {
		var verr *errors.VerificationError
		if errors.As(err, &verr) {
			verr.WithTaskID(run.ID)
		}
		return err
	}
	out.Reached = StateVerified

	if _, err := o.daemon.StopTask(ctx, run.ID); err != nil {
		return err
	}
	out.Reached = StateStopped

	if _, err := o.daemon.RemoveTask(ctx, run.ID); err != nil {
		return err
	}
	out.Reached = StateRemoved
	return nil
}

// observedMetrics returns the metric namespaces the daemon has configured
// for the task.
func (o *Orchestrator) observedMetrics(ctx context.Context, id string) ([]string, error) {
	task, err := o.api.FindTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.api.TaskMetrics(ctx, task.Href)
}

// cleanup stops and removes a task whose lifecycle failed so it does not
// stay scheduled. Both steps are attempted; the first error is returned.
func (o *Orchestrator) cleanup(ctx context.Context, run *TaskRun, out *Outcome, logger *logging.Logger) error {
	// The run may have been cancelled; cleanup still gets a short window.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var first error
	if out.Reached < StateStopped {
		if _, err := o.daemon.StopTask(ctx, run.ID); err != nil {
			logger.Debug("cleanup stop failed", "error", err)
			first = err
		}
	}
	if _, err := o.daemon.RemoveTask(ctx, run.ID); err != nil {
		logger.Debug("cleanup remove failed", "error", err)
		if first == nil {
			first = err
		}
	}
	return first
}

const cleanupTimeout = 30 * time.Second
