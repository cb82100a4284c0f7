package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "retry.interval_seconds",
		Value:   0,
		Message: "must be positive",
	}

	expected := "retry.interval_seconds: must be positive (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() = %q, want empty", errs.Error())
		}
	})

	t.Run("single", func(t *testing.T) {
		errs := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
		if errs.Error() != "a: bad (got: 1)" {
			t.Errorf("Error() = %q", errs.Error())
		}
	})

	t.Run("multiple", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		got := errs.Error()
		if !strings.HasPrefix(got, "2 validation errors:") {
			t.Errorf("Error() = %q, want count prefix", got)
		}
		if !strings.Contains(got, "1. a: bad") || !strings.Contains(got, "2. b: worse") {
			t.Errorf("Error() = %q, want numbered entries", got)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"empty cli", func(c *Config) { c.Daemon.CLI = " " }, "daemon.cli"},
		{"relative api url", func(c *Config) { c.Daemon.APIURL = "127.0.0.1:8181/v1" }, "daemon.api_url"},
		{"zero request timeout", func(c *Config) { c.Daemon.RequestTimeoutSeconds = 0 }, "daemon.request_timeout_seconds"},
		{"bad prefix", func(c *Config) { c.Plugins.Prefix = "Snap" }, "plugins.prefix"},
		{"version with slash", func(c *Config) { c.Plugins.Version = "1/2" }, "plugins.version"},
		{"empty install dir", func(c *Config) { c.Plugins.InstallDir = "" }, "plugins.install_dir"},
		{"relative remote base", func(c *Config) { c.Plugins.RemoteBase = "bucket/path" }, "plugins.remote_base"},
		{"unknown fetch", func(c *Config) { c.Plugins.Fetch = "ftp" }, "plugins.fetch"},
		{"empty tasks dir", func(c *Config) { c.Tasks.Dir = "" }, "tasks.dir"},
		{"absolute selector", func(c *Config) { c.Tasks.Selector = "/etc/*.yaml" }, "tasks.selector"},
		{"negative timeout", func(c *Config) { c.Retry.TimeoutSeconds = -1 }, "retry.timeout_seconds"},
		{"negative startup timeout", func(c *Config) { c.Retry.StartupTimeoutSeconds = -1 }, "retry.startup_timeout_seconds"},
		{"zero interval", func(c *Config) { c.Retry.IntervalSeconds = 0 }, "retry.interval_seconds"},
		{"zero parallel", func(c *Config) { c.Run.Parallel = 0 }, "run.parallel"},
		{"excessive parallel", func(c *Config) { c.Run.Parallel = 100 }, "run.parallel"},
		{"negative create pause", func(c *Config) { c.Run.CreatePauseSeconds = -3 }, "run.create_pause_seconds"},
		{"empty running state", func(c *Config) { c.Run.RunningState = "" }, "run.running_state"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"negative keep runs", func(c *Config) { c.Logging.KeepRuns = -1 }, "logging.keep_runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Validate() field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero timeout means single attempt", func(c *Config) { c.Retry.TimeoutSeconds = 0 }},
		{"uppercase log level", func(c *Config) { c.Logging.Level = "DEBUG" }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
		{"http fetch", func(c *Config) { c.Plugins.Fetch = FetchHTTP }},
		{"relative selector", func(c *Config) { c.Tasks.Selector = "mock-*.json" }},
		{"zero keep runs", func(c *Config) { c.Logging.KeepRuns = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if errs := cfg.Validate(); len(errs) != 0 {
				t.Errorf("Validate() = %v, want no errors", errs)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Daemon.CLI = ""
	cfg.Retry.IntervalSeconds = -5
	cfg.Logging.Level = "loud"

	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	expected := []string{"debug", "info", "warn", "error"}
	if len(levels) != len(expected) {
		t.Fatalf("ValidLogLevels() length = %d, want %d", len(levels), len(expected))
	}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], level)
		}
	}
}
