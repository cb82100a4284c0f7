package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete harness configuration
type Config struct {
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Plugins PluginsConfig `mapstructure:"plugins"`
	Tasks   TasksConfig   `mapstructure:"tasks"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Run     RunConfig     `mapstructure:"run"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DaemonConfig describes how to reach the daemon under test
type DaemonConfig struct {
	// Exec is an optional command prefix placed before every CLI invocation,
	// e.g. "docker compose exec -T snap". Split with shell quoting rules.
	Exec string `mapstructure:"exec"`
	// CLI is the daemon's client binary (default: "snaptel")
	CLI string `mapstructure:"cli"`
	// Binary is the daemon binary, used only for the version check (default: "snapteld")
	Binary string `mapstructure:"binary"`
	// APIURL is the base URL of the daemon's HTTP API
	APIURL string `mapstructure:"api_url"`
	// Version, when a strict semantic version, must appear in the daemon's --version output.
	// Bound to the SNAP_VERSION environment variable.
	Version string `mapstructure:"version"`
	// RequestTimeoutSeconds bounds a single HTTP request
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// PluginsConfig controls plugin resolution and loading
type PluginsConfig struct {
	// Prefix is the artifact naming prefix: <prefix>-plugin-<kind>-<name>
	Prefix string `mapstructure:"prefix"`
	// Version is the remote artifact version (default: "latest").
	// Bound to the PLUGIN_VERSION environment variable.
	Version string `mapstructure:"version"`
	// BuildDir is the local directory scanned for already-built artifacts
	BuildDir string `mapstructure:"build_dir"`
	// BuildMount is where the daemon sees BuildDir (default: same as BuildDir)
	BuildMount string `mapstructure:"build_mount"`
	// InstallDir is where downloaded artifacts are stored, as seen by the daemon
	InstallDir string `mapstructure:"install_dir"`
	// RemoteBase is the base URL of the artifact store
	RemoteBase string `mapstructure:"remote_base"`
	// Fetch selects the download strategy
	// Options: "command" (curl next to the daemon), "http" (download from the harness)
	Fetch string `mapstructure:"fetch"`
}

// TasksConfig controls task definition discovery
type TasksConfig struct {
	// Dir is the directory holding task definitions, as seen by the harness
	Dir string `mapstructure:"dir"`
	// Mount is where the daemon sees Dir (default: same as Dir)
	Mount string `mapstructure:"mount"`
	// Selector narrows the tasks to run; a glob relative to Dir.
	// Bound to the TASK environment variable. Empty selects every task.
	Selector string `mapstructure:"selector"`
	// EnvFile is an optional dotenv file used when templating task definitions
	EnvFile string `mapstructure:"env_file"`
}

// RetryConfig holds the bounded-retry budgets used when polling the daemon
type RetryConfig struct {
	// TimeoutSeconds is the budget for ordinary command and API polling
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// IntervalSeconds is the fixed pause between attempts
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// StartupTimeoutSeconds is the budget for the initial --version checks
	StartupTimeoutSeconds int `mapstructure:"startup_timeout_seconds"`
}

// RunConfig controls orchestration behavior
type RunConfig struct {
	// Interactive pauses before verifying each task so the daemon can be inspected.
	// Bound to the DEMO environment variable.
	Interactive bool `mapstructure:"interactive"`
	// Parallel is the number of task definitions processed at once (default: 1)
	Parallel int `mapstructure:"parallel"`
	// CreatePauseSeconds is the pause after task creation before polling its state
	CreatePauseSeconds int `mapstructure:"create_pause_seconds"`
	// RunningState is the status word task list must report for a started task
	RunningState string `mapstructure:"running_state"`
	// SkipVersionCheck disables the initial --version checks
	SkipVersionCheck bool `mapstructure:"skip_version_check"`
}

// LoggingConfig controls the run log
type LoggingConfig struct {
	// Dir is where harness.log is written; empty logs to stderr
	Dir string `mapstructure:"dir"`
	// Level is the minimum log level (debug, info, warn, error)
	Level string `mapstructure:"level"`
	// KeepRuns is how many previous run logs to keep
	KeepRuns int `mapstructure:"keep_runs"`
}

// Default returns a Config with the harness defaults
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Exec:                  "",
			CLI:                   "snaptel",
			Binary:                "snapteld",
			APIURL:                "http://127.0.0.1:8181",
			Version:               "",
			RequestTimeoutSeconds: 10,
		},
		Plugins: PluginsConfig{
			Prefix:     "snap",
			Version:    "latest",
			BuildDir:   filepath.Join("build", "linux", "x86_64"),
			BuildMount: "",
			InstallDir: "/opt/snap/plugins",
			RemoteBase: "https://s3-us-west-2.amazonaws.com/snap.ci.snap-telemetry.io",
			Fetch:      FetchCommand,
		},
		Tasks: TasksConfig{
			Dir:      filepath.Join("examples", "tasks"),
			Mount:    "",
			Selector: "",
			EnvFile:  "",
		},
		Retry: RetryConfig{
			TimeoutSeconds:        30,
			IntervalSeconds:       5,
			StartupTimeoutSeconds: 60,
		},
		Run: RunConfig{
			Interactive:        false,
			Parallel:           1,
			CreatePauseSeconds: 3,
			RunningState:       "Running",
			SkipVersionCheck:   false,
		},
		Logging: LoggingConfig{
			Dir:      "",
			Level:    "info",
			KeepRuns: 3,
		},
	}
}

// Fetch strategies
const (
	FetchCommand = "command"
	FetchHTTP    = "http"
)

// RetryTimeout returns the ordinary polling budget as a time.Duration
func (c *RetryConfig) RetryTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryInterval returns the pause between attempts as a time.Duration
func (c *RetryConfig) RetryInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// StartupTimeout returns the --version check budget as a time.Duration
func (c *RetryConfig) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSeconds) * time.Second
}

// CreatePause returns the post-creation pause as a time.Duration
func (c *RunConfig) CreatePause() time.Duration {
	return time.Duration(c.CreatePauseSeconds) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout as a time.Duration
func (c *DaemonConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// TaskMount returns the directory the daemon uses to read task files
func (c *TasksConfig) TaskMount() string {
	if c.Mount != "" {
		return c.Mount
	}
	return c.Dir
}

// ArtifactMount returns the directory the daemon uses to read local build artifacts
func (c *PluginsConfig) ArtifactMount() string {
	if c.BuildMount != "" {
		return c.BuildMount
	}
	return c.BuildDir
}

// envBindings maps config keys to the un-prefixed environment variables the
// harness has always honoured.
var envBindings = map[string]string{
	"plugins.version": "PLUGIN_VERSION",
	"tasks.selector":  "TASK",
	"run.interactive": "DEMO",
	"daemon.version":  "SNAP_VERSION",
}

// SetDefaults registers every default and the legacy environment bindings with viper
func SetDefaults() {
	defaults := Default()

	// Daemon defaults
	viper.SetDefault("daemon.exec", defaults.Daemon.Exec)
	viper.SetDefault("daemon.cli", defaults.Daemon.CLI)
	viper.SetDefault("daemon.binary", defaults.Daemon.Binary)
	viper.SetDefault("daemon.api_url", defaults.Daemon.APIURL)
	viper.SetDefault("daemon.version", defaults.Daemon.Version)
	viper.SetDefault("daemon.request_timeout_seconds", defaults.Daemon.RequestTimeoutSeconds)

	// Plugin defaults
	viper.SetDefault("plugins.prefix", defaults.Plugins.Prefix)
	viper.SetDefault("plugins.version", defaults.Plugins.Version)
	viper.SetDefault("plugins.build_dir", defaults.Plugins.BuildDir)
	viper.SetDefault("plugins.build_mount", defaults.Plugins.BuildMount)
	viper.SetDefault("plugins.install_dir", defaults.Plugins.InstallDir)
	viper.SetDefault("plugins.remote_base", defaults.Plugins.RemoteBase)
	viper.SetDefault("plugins.fetch", defaults.Plugins.Fetch)

	// Task defaults
	viper.SetDefault("tasks.dir", defaults.Tasks.Dir)
	viper.SetDefault("tasks.mount", defaults.Tasks.Mount)
	viper.SetDefault("tasks.selector", defaults.Tasks.Selector)
	viper.SetDefault("tasks.env_file", defaults.Tasks.EnvFile)

	// Retry defaults
	viper.SetDefault("retry.timeout_seconds", defaults.Retry.TimeoutSeconds)
	viper.SetDefault("retry.interval_seconds", defaults.Retry.IntervalSeconds)
	viper.SetDefault("retry.startup_timeout_seconds", defaults.Retry.StartupTimeoutSeconds)

	// Run defaults
	viper.SetDefault("run.interactive", defaults.Run.Interactive)
	viper.SetDefault("run.parallel", defaults.Run.Parallel)
	viper.SetDefault("run.create_pause_seconds", defaults.Run.CreatePauseSeconds)
	viper.SetDefault("run.running_state", defaults.Run.RunningState)
	viper.SetDefault("run.skip_version_check", defaults.Run.SkipVersionCheck)

	// Logging defaults
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.keep_runs", defaults.Logging.KeepRuns)

	for key, env := range envBindings {
		_ = viper.BindEnv(key, "SNAPHARNESS_"+envKey(key), env)
	}
}

// envKey turns "plugins.version" into "PLUGINS_VERSION".
func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration from viper without validating it.
// Falls back to defaults if unmarshaling fails.
func Get() *Config {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Default()
	}
	return &cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "snapharness")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".snapharness"
	}
	return filepath.Join(home, ".config", "snapharness")
}

// ConfigFile returns the path to the user's config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "snapharness.yaml")
}

// ValidFetchStrategies returns the list of valid plugins.fetch values
func ValidFetchStrategies() []string {
	return []string{FetchCommand, FetchHTTP}
}
