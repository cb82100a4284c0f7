package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Typed Error Tests
// -----------------------------------------------------------------------------

func TestConfigError(t *testing.T) {
	err := NewConfigError("cannot read task", ErrFileNotFound).WithPath("tasks/a.yaml")

	want := "config error [path=tasks/a.yaml]: cannot read task: file not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrFileNotFound) {
		t.Error("errors.Is(err, ErrFileNotFound) = false, want true")
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestCommandError_IncludesOutput(t *testing.T) {
	err := NewCommandError("task create failed", ErrNonZeroExit).
		WithArgs([]string{"snaptel", "task", "create"}).
		WithExitStatus(1).
		WithOutput("Error creating task\n", "boom\n")

	msg := err.Error()
	for _, want := range []string{`cmd="snaptel task create"`, "exit=1", "stdout:\nError creating task", "stderr:\nboom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, ErrNonZeroExit) {
		t.Error("errors.Is(err, ErrNonZeroExit) = false, want true")
	}
}

func TestAPIError(t *testing.T) {
	err := NewAPIError("empty response", ErrEmptyResponse).
		WithURL("http://127.0.0.1:8181/v1/tasks").
		WithResponse(500, "oops")

	msg := err.Error()
	if !strings.Contains(msg, "status=500") || !strings.Contains(msg, "body:\noops") {
		t.Errorf("Error() = %q, want status and body", msg)
	}
	if !err.IsRetryable() {
		t.Error("APIError should be retryable by default")
	}
}

func TestVerificationError(t *testing.T) {
	err := NewVerificationError("declared metrics not configured").
		WithTaskID("abc").
		WithMissing([]string{"b"})

	msg := err.Error()
	if !strings.Contains(msg, "task=abc") || !strings.Contains(msg, "missing: b") {
		t.Errorf("Error() = %q", msg)
	}
	if !errors.Is(err, ErrMetricsMissing) {
		t.Error("errors.Is(err, ErrMetricsMissing) = false, want true")
	}
}

func TestResolutionError(t *testing.T) {
	err := NewResolutionError("download failed", ErrFetchFailed).
		WithPlugin("collector", "psutil").
		WithURL("https://example.test/p")

	want := "resolution error [plugin=collector:psutil, url=https://example.test/p]: download failed: plugin fetch failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTimeoutError(t *testing.T) {
	cause := NewCommandError("still failing", ErrNonZeroExit)
	err := NewTimeoutError("waiting for task", 30*time.Second).WithAttempts(7).WithCause(cause)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) = false, want true")
	}
	if !errors.Is(err, ErrNonZeroExit) {
		t.Error("TimeoutError should expose its cause")
	}
	if !strings.HasPrefix(err.Error(), "timeout error: waiting for task (timeout: 30s, attempts: 7)") {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want warning", err.Severity())
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"config", NewConfigError("x", nil), "config"},
		{"resolution", NewResolutionError("x", nil), "resolution"},
		{"command", NewCommandError("x", nil), "command"},
		{"api", NewAPIError("x", nil), "api"},
		{"verification", NewVerificationError("x"), "verification"},
		{"timeout wins over wrapped command", NewTimeoutError("x", time.Second).WithCause(NewCommandError("y", nil)), "timeout"},
		{"wrapped", fmt.Errorf("ctx: %w", NewConfigError("x", nil)), "config"},
		{"outermost wins", NewResolutionError("x", Join(ErrFetchFailed, NewCommandError("curl", nil))), "resolution"},
		{"api wrapping timeout", NewAPIError("x", Join(ErrEmptyResponse, NewTimeoutError("GET", time.Second))), "api"},
		{"plain", New("plain"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Category(tt.err); got != tt.want {
				t.Errorf("Category() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTimeout_DistinguishesFromCommandError(t *testing.T) {
	if IsTimeout(NewCommandError("rejected", ErrNonZeroExit)) {
		t.Error("IsTimeout(CommandError) = true, want false")
	}
	if !IsTimeout(Wrap(NewTimeoutError("poll", time.Second), "task list")) {
		t.Error("IsTimeout(wrapped TimeoutError) = false, want true")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
	if !IsRetryable(NewTimeoutError("x", time.Second)) {
		t.Error("timeouts should be retryable")
	}
	if IsRetryable(NewCommandError("x", nil)) {
		t.Error("command errors should not be retryable")
	}
	if IsRetryable(New("plain")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v", got)
	}
	if got := GetSeverity(New("plain")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v", got)
	}
	if got := GetSeverity(NewTimeoutError("x", 0)); got != SeverityWarning {
		t.Errorf("GetSeverity(timeout) = %v", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(NewConfigError("x", nil)) {
		t.Error("ConfigError should be user facing")
	}
	if IsUserFacing(New("plain")) {
		t.Error("plain errors should not be user facing")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrParse, "reading %s", "a.yaml")
	if err.Error() != "reading a.yaml: parse error" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrParse) {
		t.Error("Wrapf should preserve the chain")
	}
}
