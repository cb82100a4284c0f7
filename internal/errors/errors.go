// Package errors provides centralized error definitions and error handling utilities
// for the harness. It defines the error taxonomy used across the run: sentinel
// errors, typed errors carrying diagnostic context, and classification helpers.
//
// # Error Types
//
//   - ConfigError: missing or invalid task file, malformed document, bad settings
//   - ResolutionError: no local artifact and the remote fetch failed
//   - CommandError: a CLI invocation exited non-zero or printed unexpected output
//   - APIError: the HTTP API returned an empty or malformed response
//   - VerificationError: observed daemon state does not match the task definition
//   - TimeoutError: a retry budget was exhausted without success
//
// # Usage
//
//	err := errors.NewCommandError("task create failed", errors.ErrNonZeroExit).
//	    WithArgs(args).WithExitStatus(1).WithOutput(stdout, stderr)
//
//	var timeout *errors.TimeoutError
//	if errors.As(err, &timeout) { ... } // never became consistent
//
//	var cmdErr *errors.CommandError
//	if errors.As(err, &cmdErr) { ... } // explicitly rejected
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Task definition sentinel errors
var (
	// ErrFileNotFound indicates that a task definition path does not exist.
	ErrFileNotFound = New("file not found")
	// ErrParse indicates that a document is not valid in the requested format.
	ErrParse = New("parse error")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// Plugin resolution sentinel errors
var (
	// ErrFetchFailed indicates that a plugin artifact could not be downloaded.
	ErrFetchFailed = New("plugin fetch failed")
)

// Daemon interaction sentinel errors
var (
	// ErrNonZeroExit indicates that a CLI invocation exited with a non-zero status.
	ErrNonZeroExit = New("non-zero exit status")
	// ErrUnexpectedOutput indicates that a CLI invocation did not print the confirming message.
	ErrUnexpectedOutput = New("unexpected command output")
	// ErrTaskIDMissing indicates that task creation output had no "ID:" line.
	ErrTaskIDMissing = New("task id missing from output")
	// ErrTaskNotListed indicates that the API task list did not contain the task.
	ErrTaskNotListed = New("task not listed by api")
	// ErrEmptyResponse indicates that the API returned an empty body.
	ErrEmptyResponse = New("empty api response")
)

// Verification and timing sentinel errors
var (
	// ErrMetricsMissing indicates that declared metrics were not observed on the daemon.
	ErrMetricsMissing = New("declared metrics missing")
	// ErrRetryExhausted indicates that a retry budget ran out before success.
	ErrRetryExhausted = New("retry budget exhausted")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// HarnessError is the base interface for all harness errors.
type HarnessError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func newBase(message string, cause error, severity Severity, retryable bool) baseError {
	return baseError{
		message:    message,
		cause:      cause,
		severity:   severity,
		retryable:  retryable,
		userFacing: true,
	}
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// ConfigError
// -----------------------------------------------------------------------------

// ConfigError represents a missing or invalid task file or setting.
//
// Example:
//
//	err := errors.NewConfigError("cannot read task", errors.ErrFileNotFound).WithPath("tasks/a.yaml")
//	fmt.Println(err) // "config error [path=tasks/a.yaml]: cannot read task: file not found"
type ConfigError struct {
	baseError
	Path string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{baseError: newBase(message, cause, SeverityError, false)}
}

// WithPath adds the offending file path to the error context.
func (e *ConfigError) WithPath(path string) *ConfigError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("config error", parts)
}

// -----------------------------------------------------------------------------
// ResolutionError
// -----------------------------------------------------------------------------

// ResolutionError represents a plugin that could not be located or fetched.
type ResolutionError struct {
	baseError
	Kind string
	Name string
	URL  string
}

// NewResolutionError creates a new ResolutionError.
func NewResolutionError(message string, cause error) *ResolutionError {
	return &ResolutionError{baseError: newBase(message, cause, SeverityError, false)}
}

// WithPlugin adds the plugin kind and name to the error context.
func (e *ResolutionError) WithPlugin(kind, name string) *ResolutionError {
	e.Kind = kind
	e.Name = name
	return e
}

// WithURL adds the remote location that was tried.
func (e *ResolutionError) WithURL(url string) *ResolutionError {
	e.URL = url
	return e
}

// Error returns the formatted error message.
func (e *ResolutionError) Error() string {
	var parts []string
	if e.Kind != "" || e.Name != "" {
		parts = append(parts, fmt.Sprintf("plugin=%s:%s", e.Kind, e.Name))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("url=%s", e.URL))
	}
	return e.format("resolution error", parts)
}

// -----------------------------------------------------------------------------
// CommandError
// -----------------------------------------------------------------------------

// CommandError represents a CLI invocation that was rejected by the daemon.
// The captured output is part of the message to aid diagnosis.
type CommandError struct {
	baseError
	Args       []string
	ExitStatus int
	Stdout     string
	Stderr     string
}

// NewCommandError creates a new CommandError.
func NewCommandError(message string, cause error) *CommandError {
	return &CommandError{baseError: newBase(message, cause, SeverityError, false)}
}

// WithArgs records the invoked argv.
func (e *CommandError) WithArgs(args []string) *CommandError {
	e.Args = args
	return e
}

// WithExitStatus records the exit status of the invocation.
func (e *CommandError) WithExitStatus(status int) *CommandError {
	e.ExitStatus = status
	return e
}

// WithOutput records captured stdout and stderr.
func (e *CommandError) WithOutput(stdout, stderr string) *CommandError {
	e.Stdout = stdout
	e.Stderr = stderr
	return e
}

// Error returns the formatted error message.
func (e *CommandError) Error() string {
	var parts []string
	if len(e.Args) > 0 {
		parts = append(parts, fmt.Sprintf("cmd=%q", strings.Join(e.Args, " ")))
	}
	parts = append(parts, fmt.Sprintf("exit=%d", e.ExitStatus))
	msg := e.format("command error", parts)
	if out := strings.TrimSpace(e.Stdout); out != "" {
		msg += "\nstdout:\n" + out
	}
	if out := strings.TrimSpace(e.Stderr); out != "" {
		msg += "\nstderr:\n" + out
	}
	return msg
}

// -----------------------------------------------------------------------------
// APIError
// -----------------------------------------------------------------------------

// APIError represents an empty or malformed HTTP API response.
type APIError struct {
	baseError
	URL        string
	StatusCode int
	Body       string
}

// NewAPIError creates a new APIError.
func NewAPIError(message string, cause error) *APIError {
	return &APIError{baseError: newBase(message, cause, SeverityError, true)}
}

// WithURL records the requested URL.
func (e *APIError) WithURL(url string) *APIError {
	e.URL = url
	return e
}

// WithResponse records the response status and body.
func (e *APIError) WithResponse(status int, body string) *APIError {
	e.StatusCode = status
	e.Body = body
	return e
}

// Error returns the formatted error message.
func (e *APIError) Error() string {
	var parts []string
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("url=%s", e.URL))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	msg := e.format("api error", parts)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += "\nbody:\n" + body
	}
	return msg
}

// -----------------------------------------------------------------------------
// VerificationError
// -----------------------------------------------------------------------------

// VerificationError represents observed state that does not match the
// declared task definition.
//
// Example:
//
//	err := errors.NewVerificationError("metrics not configured").
//	    WithTaskID("abc").WithMissing([]string{"/intel/mock/bar"})
type VerificationError struct {
	baseError
	TaskID  string
	Missing []string
}

// NewVerificationError creates a new VerificationError.
func NewVerificationError(message string) *VerificationError {
	return &VerificationError{baseError: newBase(message, ErrMetricsMissing, SeverityError, false)}
}

// WithTaskID adds the daemon task identifier.
func (e *VerificationError) WithTaskID(id string) *VerificationError {
	e.TaskID = id
	return e
}

// WithMissing records the declared entries that were not observed.
func (e *VerificationError) WithMissing(missing []string) *VerificationError {
	e.Missing = missing
	return e
}

// Error returns the formatted error message.
func (e *VerificationError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	msg := e.format("verification error", parts)
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(" (missing: %s)", strings.Join(e.Missing, ", "))
	}
	return msg
}

// -----------------------------------------------------------------------------
// TimeoutError
// -----------------------------------------------------------------------------

// TimeoutError represents a retry budget that was exhausted without success.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for task to run", 30*time.Second).WithAttempts(7)
//	fmt.Println(err) // "timeout error: waiting for task to run (timeout: 30s, attempts: 7)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
	Attempts  int
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: newBase(operation, nil, SeverityWarning, true),
		Operation: operation,
		Duration:  duration,
	}
}

// WithAttempts records how many times the operation was tried.
func (e *TimeoutError) WithAttempts(n int) *TimeoutError {
	e.Attempts = n
	return e
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s, attempts: %d)", e.Operation, e.Duration, e.Attempts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is reports ErrRetryExhausted as matching every TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var harnessErr HarnessError
	if As(err, &harnessErr) {
		return harnessErr.IsRetryable()
	}

	return Is(err, ErrRetryExhausted)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var harnessErr HarnessError
	if As(err, &harnessErr) {
		return harnessErr.IsUserFacing()
	}
	return false
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return As(err, &timeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement HarnessError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var harnessErr HarnessError
	if As(err, &harnessErr) {
		return harnessErr.Severity()
	}

	return SeverityError
}

// Category returns a short label for the taxonomy class of the outermost
// harness error in err's chain, used in reports.
func Category(err error) string {
	if err == nil {
		return ""
	}
	if c := category(err); c != "" {
		return c
	}
	return "internal"
}

func category(err error) string {
	switch err.(type) {
	case *TimeoutError:
		return "timeout"
	case *VerificationError:
		return "verification"
	case *CommandError:
		return "command"
	case *APIError:
		return "api"
	case *ResolutionError:
		return "resolution"
	case *ConfigError:
		return "config"
	}

	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if next := u.Unwrap(); next != nil {
			return category(next)
		}
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if c := category(e); c != "" {
				return c
			}
		}
	}
	return ""
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
