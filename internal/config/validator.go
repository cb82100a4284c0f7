package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.interval_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// prefixRegex validates the artifact naming prefix
var prefixRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateDaemon()...)
	errors = append(errors, c.validatePlugins()...)
	errors = append(errors, c.validateTasks()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateDaemon validates the DaemonConfig
func (c *Config) validateDaemon() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Daemon.CLI) == "" {
		errors = append(errors, ValidationError{
			Field:   "daemon.cli",
			Value:   c.Daemon.CLI,
			Message: "must not be empty",
		})
	}

	if u, err := url.Parse(c.Daemon.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "daemon.api_url",
			Value:   c.Daemon.APIURL,
			Message: "must be an absolute http(s) URL",
		})
	}

	if c.Daemon.RequestTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "daemon.request_timeout_seconds",
			Value:   c.Daemon.RequestTimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validatePlugins validates the PluginsConfig
func (c *Config) validatePlugins() []ValidationError {
	var errors []ValidationError

	if !prefixRegex.MatchString(c.Plugins.Prefix) {
		errors = append(errors, ValidationError{
			Field:   "plugins.prefix",
			Value:   c.Plugins.Prefix,
			Message: "must start with a lowercase letter and contain only lowercase letters, digits, hyphens, or underscores",
		})
	}

	if strings.ContainsAny(c.Plugins.Version, "/ ") {
		errors = append(errors, ValidationError{
			Field:   "plugins.version",
			Value:   c.Plugins.Version,
			Message: "must not contain slashes or spaces",
		})
	}

	if c.Plugins.InstallDir == "" {
		errors = append(errors, ValidationError{
			Field:   "plugins.install_dir",
			Value:   c.Plugins.InstallDir,
			Message: "must not be empty",
		})
	}

	if u, err := url.Parse(c.Plugins.RemoteBase); err != nil || u.Scheme == "" {
		errors = append(errors, ValidationError{
			Field:   "plugins.remote_base",
			Value:   c.Plugins.RemoteBase,
			Message: "must be an absolute URL",
		})
	}

	if !slices.Contains(ValidFetchStrategies(), c.Plugins.Fetch) {
		errors = append(errors, ValidationError{
			Field:   "plugins.fetch",
			Value:   c.Plugins.Fetch,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidFetchStrategies(), ", ")),
		})
	}

	return errors
}

// validateTasks validates the TasksConfig
func (c *Config) validateTasks() []ValidationError {
	var errors []ValidationError

	if c.Tasks.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "tasks.dir",
			Value:   c.Tasks.Dir,
			Message: "must not be empty",
		})
	}

	if strings.HasPrefix(c.Tasks.Selector, "/") {
		errors = append(errors, ValidationError{
			Field:   "tasks.selector",
			Value:   c.Tasks.Selector,
			Message: "must be relative to tasks.dir",
		})
	}

	return errors
}

// validateRetry validates the RetryConfig
func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.timeout_seconds",
			Value:   c.Retry.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}
	if c.Retry.StartupTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.startup_timeout_seconds",
			Value:   c.Retry.StartupTimeoutSeconds,
			Message: "must be non-negative",
		})
	}
	if c.Retry.IntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.interval_seconds",
			Value:   c.Retry.IntervalSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateRun validates the RunConfig
func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	const maxParallel = 32
	if c.Run.Parallel < 1 || c.Run.Parallel > maxParallel {
		errors = append(errors, ValidationError{
			Field:   "run.parallel",
			Value:   c.Run.Parallel,
			Message: fmt.Sprintf("must be between 1 and %d", maxParallel),
		})
	}

	if c.Run.CreatePauseSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.create_pause_seconds",
			Value:   c.Run.CreatePauseSeconds,
			Message: "must be non-negative",
		})
	}

	if strings.TrimSpace(c.Run.RunningState) == "" {
		errors = append(errors, ValidationError{
			Field:   "run.running_state",
			Value:   c.Run.RunningState,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.KeepRuns < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.keep_runs",
			Value:   c.Logging.KeepRuns,
			Message: "must be non-negative",
		})
	}

	return errors
}
