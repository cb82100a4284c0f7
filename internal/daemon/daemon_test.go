package daemon

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/retry"
	"github.com/snap-telemetry/snapharness/internal/testutil"
)

const taskListing = `ID                                     NAME                                          STATE     HIT   MISS  FAIL  CREATED                 LAST FAILURE
 0f3fa1cd-5e50-4d0b-a2b5-3b1b2e5a0b7a  Task-0f3fa1cd-5e50-4d0b-a2b5-3b1b2e5a0b7a  Stopped   2     0     0     3:04PM 6-18-2017
 abc123                                Task-abc123                                   Running   5     0     0     3:05PM 6-18-2017
`

func newClient(runner *testutil.FakeRunner) *Client {
	return New(runner, Options{
		Policy:  retry.Policy{Timeout: 5 * time.Millisecond, Interval: time.Millisecond},
		Startup: retry.Policy{Timeout: 5 * time.Millisecond, Interval: time.Millisecond},
		Tracker: retry.NewTracker(),
	})
}

func TestParseTaskID(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    string
		wantErr bool
	}{
		{"standard output", "Using task manifest to create task\nTask created\nID: abc123\nName: Task-abc123\nState: Running\n", "abc123", false},
		{"uuid", "Task created\nID: 0f3fa1cd-5e50-4d0b-a2b5-3b1b2e5a0b7a\n", "0f3fa1cd-5e50-4d0b-a2b5-3b1b2e5a0b7a", false},
		{"indented", "Task created\n  ID: xyz\n", "xyz", false},
		{"missing", "Task created\nName: Task-abc123\n", "", true},
		{"empty id", "Task created\nID:   \n", "", true},
		{"empty output", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTaskID(tt.stdout)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTaskID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errors.ErrTaskIDMissing) {
				t.Errorf("ParseTaskID() error = %v, want ErrTaskIDMissing", err)
			}
			if got != tt.want {
				t.Errorf("ParseTaskID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasState(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		id      string
		want    bool
	}{
		{"running task", taskListing, "abc123", true},
		{"stopped task", taskListing, "0f3fa1cd-5e50-4d0b-a2b5-3b1b2e5a0b7a", false},
		{"id absent falls back to whole listing", taskListing, "zzz", true},
		{"empty id searches listing", "abc Running", "", true},
		{"nothing running", "ID NAME STATE\nabc Stopped\n", "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasState(tt.listing, tt.id, "Running"); got != tt.want {
				t.Errorf("HasState(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	got := Missing("NAME VERSION\nmock 2\npassthru 1\n", []string{"mock", "passthru", "file"})
	if !reflect.DeepEqual(got, []string{"file"}) {
		t.Errorf("Missing() = %v, want [file]", got)
	}
	if got := Missing("anything", nil); got != nil {
		t.Errorf("Missing(nil) = %v, want nil", got)
	}
}

func TestClient_Versions(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On("snaptel --version", testutil.OK(""), testutil.OK("snaptel version 2.0.0")).
		On("snapteld --version", testutil.Fail(1, "", "not ready"))
	c := newClient(runner)
	ctx := context.Background()

	res, err := c.CLIVersion(ctx)
	if err != nil {
		t.Fatalf("CLIVersion() error = %v", err)
	}
	if res.Stdout != "snaptel version 2.0.0" {
		t.Errorf("CLIVersion() stdout = %q", res.Stdout)
	}
	if runner.CallCount("snaptel --version") != 2 {
		t.Errorf("snaptel --version called %d times, want 2", runner.CallCount("snaptel --version"))
	}

	res, err = c.DaemonVersion(ctx)
	if !errors.IsTimeout(err) {
		t.Fatalf("DaemonVersion() error = %v, want timeout", err)
	}
	if res.ExitStatus != 1 {
		t.Errorf("DaemonVersion() last exit = %d, want 1", res.ExitStatus)
	}
	wantAttempts := c.opts.Startup.MaxAttempts()
	if runner.CallCount("snapteld --version") != wantAttempts {
		t.Errorf("snapteld --version called %d times, want %d", runner.CallCount("snapteld --version"), wantAttempts)
	}
}

func TestClient_LoadPlugin(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On("snaptel plugin load /opt/snap/plugins/snap-plugin-collector-mock", testutil.OK("Plugin loaded\n")).
		On("snaptel plugin load /missing", testutil.Fail(1, "", "Error loading plugin:\nfile not found"))
	c := newClient(runner)
	ctx := context.Background()

	res, err := c.LoadPlugin(ctx, "/opt/snap/plugins/snap-plugin-collector-mock")
	if err != nil || res.ExitStatus != 0 {
		t.Fatalf("LoadPlugin() = %+v, %v", res, err)
	}

	res, err = c.LoadPlugin(ctx, "/missing")
	var cmdErr *errors.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("LoadPlugin(/missing) error = %v, want *CommandError", err)
	}
	if res.ExitStatus != 1 || cmdErr.Stderr == "" {
		t.Errorf("LoadPlugin(/missing) = %+v, stderr %q", res, cmdErr.Stderr)
	}
	if runner.CallCount("snaptel plugin load /missing") != 1 {
		t.Error("plugin load should not be retried")
	}
}

func TestClient_CreateTask(t *testing.T) {
	tests := []struct {
		name     string
		response testutil.Response
		wantID   string
		sentinel error
	}{
		{"created", testutil.OK("Task created\nID: abc123\nName: Task-abc123\n"), "abc123", nil},
		{"non-zero exit", testutil.Fail(1, "Error creating task", ""), "", errors.ErrNonZeroExit},
		{"no created text", testutil.OK("Something else\nID: abc123\n"), "", errors.ErrUnexpectedOutput},
		{"no id", testutil.OK("Task created\n"), "", errors.ErrTaskIDMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := testutil.NewFakeRunner().On("snaptel task create -t /plugin/examples/tasks/mock.yaml", tt.response)
			id, _, err := newClient(runner).CreateTask(context.Background(), "/plugin/examples/tasks/mock.yaml")

			if tt.sentinel == nil {
				if err != nil {
					t.Fatalf("CreateTask() error = %v", err)
				}
			} else if !errors.Is(err, tt.sentinel) {
				t.Fatalf("CreateTask() error = %v, want %v", err, tt.sentinel)
			}
			if id != tt.wantID {
				t.Errorf("CreateTask() id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestClient_WaitForState(t *testing.T) {
	t.Run("becomes running", func(t *testing.T) {
		runner := testutil.NewFakeRunner().On("snaptel task list",
			testutil.OK("ID NAME STATE\nabc123 Task Spinning\n"),
			testutil.OK(taskListing))
		c := newClient(runner)

		res, err := c.WaitForState(context.Background(), "abc123", "Running")
		if err != nil {
			t.Fatalf("WaitForState() error = %v", err)
		}
		if res.Stdout != taskListing {
			t.Errorf("WaitForState() returned stale listing %q", res.Stdout)
		}
		stats := c.opts.Tracker.Stats()
		if len(stats) != 1 || stats[0].Attempts != 2 {
			t.Errorf("tracker stats = %+v, want 2 attempts", stats)
		}
	})

	t.Run("never running", func(t *testing.T) {
		runner := testutil.NewFakeRunner().On("snaptel task list", testutil.OK("abc123 Task Stopped\n"))
		c := newClient(runner)

		res, err := c.WaitForState(context.Background(), "abc123", "Running")
		var timeout *errors.TimeoutError
		if !errors.As(err, &timeout) {
			t.Fatalf("WaitForState() error = %v, want *TimeoutError", err)
		}
		if res.Stdout != "abc123 Task Stopped\n" {
			t.Errorf("last listing = %q", res.Stdout)
		}
	})
}

func TestClient_StopAndRemove(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On("snaptel task stop abc123", testutil.OK("Task stopped:\nID: abc123\n")).
		On("snaptel task remove abc123", testutil.OK("Task removed:\nID: abc123\n")).
		On("snaptel task stop bad", testutil.OK("Error stopping task\n")).
		On("snaptel task remove bad", testutil.Fail(1, "", "task not found"))
	c := newClient(runner)
	ctx := context.Background()

	if _, err := c.StopTask(ctx, "abc123"); err != nil {
		t.Errorf("StopTask() error = %v", err)
	}
	if _, err := c.RemoveTask(ctx, "abc123"); err != nil {
		t.Errorf("RemoveTask() error = %v", err)
	}
	if _, err := c.StopTask(ctx, "bad"); !errors.Is(err, errors.ErrUnexpectedOutput) {
		t.Errorf("StopTask(bad) error = %v, want ErrUnexpectedOutput", err)
	}
	if _, err := c.RemoveTask(ctx, "bad"); !errors.Is(err, errors.ErrNonZeroExit) {
		t.Errorf("RemoveTask(bad) error = %v, want ErrNonZeroExit", err)
	}
}

func TestClient_PluginList(t *testing.T) {
	runner := testutil.NewFakeRunner().On("snaptel plugin list", testutil.OK("NAME VERSION TYPE\nmock 2 collector\n"))
	res, err := newClient(runner).PluginList(context.Background())
	if err != nil {
		t.Fatalf("PluginList() error = %v", err)
	}
	if Missing(res.Stdout, []string{"mock"}) != nil {
		t.Errorf("PluginList() stdout = %q", res.Stdout)
	}
}

func TestNew_Defaults(t *testing.T) {
	runner := testutil.NewFakeRunner().On("snaptel task list", testutil.OK(taskListing))
	c := New(runner, Options{})
	if c.opts.CLI != "snaptel" || c.opts.Binary != "snapteld" {
		t.Errorf("defaults = %q, %q", c.opts.CLI, c.opts.Binary)
	}
	if c.Runner() != runner {
		t.Error("Runner() should return the configured runner")
	}
	if _, err := c.TaskList(context.Background()); err != nil {
		t.Errorf("TaskList() with zero policy error = %v", err)
	}
}
