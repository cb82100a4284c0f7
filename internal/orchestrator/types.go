package orchestrator

import (
	"time"

	"github.com/snap-telemetry/snapharness/internal/deps"
	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/plugin"
	"github.com/snap-telemetry/snapharness/internal/retry"
	"github.com/snap-telemetry/snapharness/internal/taskspec"
)

// State is a step of a task's lifecycle. States are ordered; a task that
// fails stays at the last state it reached.
type State int

const (
	StateDiscovered State = iota
	StatePluginsLoaded
	StateCreated
	StateRunning
	StateVerified
	StateStopped
	StateRemoved
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StatePluginsLoaded:
		return "plugins-loaded"
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateVerified:
		return "verified"
	case StateStopped:
		return "stopped"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// TaskRun is a task definition submitted to the daemon.
type TaskRun struct {
	Definition *taskspec.Definition
	ID         string
}

// Outcome is the result of one task definition.
type Outcome struct {
	File     string // relative to the task directory
	TaskID   string
	Reached  State
	Deps     []deps.Dependency
	Declared []string // metric namespaces in the definition
	Observed []string // metric namespaces the daemon reported
	Err      error    // first failure; nil when the task reached StateRemoved
	Cleanup  error    // failure of the best-effort stop/remove after Err
	Duration time.Duration
}

// Passed reports whether the task completed its whole lifecycle.
func (o Outcome) Passed() bool {
	return o.Err == nil && o.Reached == StateRemoved
}

// PluginOutcome is the result of loading one dependency.
type PluginOutcome struct {
	Dependency deps.Dependency
	Source     plugin.Source
	ExitStatus int
	Listed     bool // "plugin list" mentioned the plugin after loading
	Err        error
}

// Report collects the outcomes of one run.
type Report struct {
	CLIVersion    string
	DaemonVersion string
	Plugins       []PluginOutcome
	Tasks         []Outcome
	Retries       []retry.OperationStats
	Err           error // run-level failure that stopped the run early
	Duration      time.Duration
}

// Failed returns the number of failed tasks and plugins, plus one for a
// run-level failure.
func (r *Report) Failed() int {
	n := 0
	if r.Err != nil {
		n++
	}
	for _, p := range r.Plugins {
		if p.Err != nil {
			n++
		}
	}
	for _, t := range r.Tasks {
		if !t.Passed() {
			n++
		}
	}
	return n
}

// OK reports whether the run had no failures.
func (r *Report) OK() bool {
	return r.Failed() == 0
}

// CompareMetrics checks that observed contains every declared namespace.
// The returned *errors.VerificationError lists the missing ones in
// declaration order.
func CompareMetrics(declared, observed []string) error {
	seen := make(map[string]bool, len(observed))
	for _, ns := range observed {
		seen[ns] = true
	}
	var missing []string
	for _, ns := range declared {
		if !seen[ns] {
			missing = append(missing, ns)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.NewVerificationError("declared metrics not configured on daemon").WithMissing(missing)
}
