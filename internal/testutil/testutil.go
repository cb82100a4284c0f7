// Package testutil provides testing utilities for harness tests: a scripted
// command runner standing in for the daemon CLI, and task directory fixtures.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/snap-telemetry/snapharness/internal/command"
)

// Response is one scripted outcome of a command.
type Response struct {
	Result command.Result
	Err    error
}

// OK returns a successful response printing stdout.
func OK(stdout string) Response {
	return Response{Result: command.Result{ExitStatus: 0, Stdout: stdout}}
}

// Fail returns a response exiting with status and the given output.
func Fail(status int, stdout, stderr string) Response {
	return Response{Result: command.Result{ExitStatus: status, Stdout: stdout, Stderr: stderr}}
}

type script struct {
	prefix    string
	responses []Response
	fn        func(args []string) Response
	calls     int
}

// FakeRunner implements command.Runner with scripted responses keyed by
// argv prefix. The longest registered prefix of the joined argv wins; among
// equal prefixes the latest registration wins, so a test can override a
// default script. Unscripted commands exit 127. It is safe for concurrent use.
type FakeRunner struct {
	mu      sync.Mutex
	scripts []*script
	calls   [][]string
}

// NewFakeRunner creates a FakeRunner with no scripts.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On scripts the commands starting with prefix. Each call consumes the next
// response; the last one repeats once the list is exhausted.
func (f *FakeRunner) On(prefix string, responses ...Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, &script{prefix: prefix, responses: responses})
	return f
}

// OnFunc scripts the commands starting with prefix with a function of argv.
func (f *FakeRunner) OnFunc(prefix string, fn func(args []string) Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, &script{prefix: prefix, fn: fn})
	return f
}

// Run implements command.Runner.
func (f *FakeRunner) Run(ctx context.Context, args ...string) (command.Result, error) {
	if err := ctx.Err(); err != nil {
		return command.Result{Args: args, ExitStatus: command.ExitNotStarted}, err
	}

	joined := strings.Join(args, " ")

	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	var best *script
	for _, s := range f.scripts {
		if strings.HasPrefix(joined, s.prefix) && (best == nil || len(s.prefix) >= len(best.prefix)) {
			best = s
		}
	}
	var resp Response
	switch {
	case best == nil:
		resp = Fail(127, "", "command not found: "+joined)
	case best.fn != nil:
		best.calls++
		fn := best.fn
		f.mu.Unlock()
		resp = fn(args)
		f.mu.Lock()
	case len(best.responses) == 0:
		best.calls++
		resp = OK("")
	default:
		idx := best.calls
		if idx >= len(best.responses) {
			idx = len(best.responses) - 1
		}
		best.calls++
		resp = best.responses[idx]
	}
	f.mu.Unlock()

	resp.Result.Args = args
	return resp.Result, resp.Err
}

// Calls returns every argv run so far, in order.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many runs started with prefix.
func (f *FakeRunner) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(strings.Join(c, " "), prefix) {
			n++
		}
	}
	return n
}

// SetupTaskDir creates a temporary task directory holding files, a map of
// relative path to content. The directory is removed when the test completes.
func SetupTaskDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
	return dir
}
