package orchestrator

import (
	"github.com/spf13/afero"

	"github.com/snap-telemetry/snapharness/internal/api"
	"github.com/snap-telemetry/snapharness/internal/command"
	"github.com/snap-telemetry/snapharness/internal/config"
	"github.com/snap-telemetry/snapharness/internal/daemon"
	"github.com/snap-telemetry/snapharness/internal/logging"
	"github.com/snap-telemetry/snapharness/internal/plugin"
	"github.com/snap-telemetry/snapharness/internal/retry"
	"github.com/snap-telemetry/snapharness/internal/taskspec"
)

// FromConfig wires an Orchestrator against the real filesystem, the local
// process runner and the daemon's HTTP API.
func FromConfig(cfg *config.Config, logger *logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	fs := afero.NewOsFs()

	runner, err := command.NewExecRunner(cfg.Daemon.Exec, logger)
	if err != nil {
		return nil, err
	}
	return Assemble(cfg, fs, runner, logger)
}

// Assemble wires an Orchestrator from cfg around the given filesystem and
// command runner.
func Assemble(cfg *config.Config, fs afero.Fs, runner command.Runner, logger *logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	tracker := retry.NewTracker()
	policy := retry.Policy{Timeout: cfg.Retry.RetryTimeout(), Interval: cfg.Retry.RetryInterval()}

	client := daemon.New(runner, daemon.Options{
		CLI:     cfg.Daemon.CLI,
		Binary:  cfg.Daemon.Binary,
		Policy:  policy,
		Startup: retry.Policy{Timeout: cfg.Retry.StartupTimeout(), Interval: cfg.Retry.RetryInterval()},
		Tracker: tracker,
		Logger:  logger,
	})

	apiClient := api.New(api.Options{
		BaseURL: cfg.Daemon.APIURL,
		Timeout: cfg.Daemon.RequestTimeout(),
		Policy:  policy,
		Tracker: tracker,
		Logger:  logger,
	})

	reader, err := NewReader(fs, cfg.Tasks.EnvFile)
	if err != nil {
		return nil, err
	}

	loader, err := NewLoader(cfg, fs, runner, client, logger)
	if err != nil {
		return nil, err
	}

	return New(Options{
		TasksDir:         cfg.Tasks.Dir,
		TaskMount:        cfg.Tasks.TaskMount(),
		Selector:         cfg.Tasks.Selector,
		DaemonVersion:    cfg.Daemon.Version,
		SkipVersionCheck: cfg.Run.SkipVersionCheck,
		CreatePause:      cfg.Run.CreatePause(),
		RunningState:     cfg.Run.RunningState,
		Interactive:      cfg.Run.Interactive,
		Parallel:         cfg.Run.Parallel,
	}, Components{
		FS:      fs,
		Reader:  reader,
		Daemon:  client,
		API:     apiClient,
		Loader:  loader,
		Tracker: tracker,
		Logger:  logger,
	}), nil
}

// NewReader returns a task reader templating from the process environment,
// overlaid with envFile when set.
func NewReader(fs afero.Fs, envFile string) (*taskspec.Reader, error) {
	env, err := taskspec.OverlayEnv(fs, envFile, nil)
	if err != nil {
		return nil, err
	}
	return taskspec.NewReader(fs, env), nil
}

// NewResolver returns the resolver described by cfg.
func NewResolver(cfg *config.Config, fs afero.Fs) (*plugin.Resolver, error) {
	index, err := plugin.NewLocalIndex(fs, cfg.Plugins.BuildDir, cfg.Plugins.Prefix)
	if err != nil {
		return nil, err
	}
	return &plugin.Resolver{
		Prefix:     cfg.Plugins.Prefix,
		Index:      index,
		LocalMount: cfg.Plugins.ArtifactMount(),
		InstallDir: cfg.Plugins.InstallDir,
		RemoteBase: cfg.Plugins.RemoteBase,
		Rules:      plugin.DefaultRules(),
	}, nil
}

// NewLoader returns a plugin loader using the fetch strategy cfg selects.
func NewLoader(cfg *config.Config, fs afero.Fs, runner command.Runner, client *daemon.Client, logger *logging.Logger) (*plugin.Loader, error) {
	resolver, err := NewResolver(cfg, fs)
	if err != nil {
		return nil, err
	}
	var fetcher plugin.Fetcher = &plugin.CommandFetcher{Runner: runner}
	if cfg.Plugins.Fetch == config.FetchHTTP {
		fetcher = plugin.NewHTTPFetcher(fs, cfg.Daemon.RequestTimeout())
	}
	return plugin.NewLoader(resolver, fetcher, client, cfg.Plugins.Version, logger), nil
}
