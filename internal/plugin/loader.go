package plugin

import (
	"context"
	"sync"

	"github.com/snap-telemetry/snapharness/internal/command"
	"github.com/snap-telemetry/snapharness/internal/daemon"
	"github.com/snap-telemetry/snapharness/internal/deps"
	"github.com/snap-telemetry/snapharness/internal/logging"
)

// Result is the outcome of loading one dependency.
type Result struct {
	Source     Source
	ExitStatus int  // of "plugin load"; command.ExitNotStarted if it never ran
	Cached     bool // an earlier Load call in this run did the work
	Err        error
}

// Loader loads dependencies into the daemon, each at most once per run.
// A dependency whose load failed is not attempted again. It is safe for
// concurrent use; loads are serialized.
type Loader struct {
	resolver *Resolver
	fetcher  Fetcher
	daemon   *daemon.Client
	version  string
	logger   *logging.Logger

	mu       sync.Mutex
	attempts map[deps.Dependency]Result
	order    []deps.Dependency
}

// NewLoader creates a Loader fetching remote artifacts at version.
func NewLoader(resolver *Resolver, fetcher Fetcher, client *daemon.Client, version string, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Loader{
		resolver: resolver,
		fetcher:  fetcher,
		daemon:   client,
		version:  version,
		logger:   logger,
		attempts: make(map[deps.Dependency]Result),
	}
}

// Load resolves dep, fetches it when remote and issues "plugin load". The
// returned error is also recorded in Result.Err.
func (l *Loader) Load(ctx context.Context, dep deps.Dependency) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.attempts[dep]; ok {
		prev.Cached = true
		return prev, prev.Err
	}

	res := l.load(ctx, dep)
	if ctx.Err() != nil && res.Err != nil {
		// Interrupted loads are not remembered.
		return res, res.Err
	}
	l.attempts[dep] = res
	l.order = append(l.order, dep)
	return res, res.Err
}

func (l *Loader) load(ctx context.Context, dep deps.Dependency) Result {
	logger := l.logger.WithPlugin(string(dep.Kind), dep.Name)
	res := Result{ExitStatus: command.ExitNotStarted}

	src, err := l.resolver.Resolve(dep, l.version)
	res.Source = src
	if err != nil {
		logger.Warn("cannot resolve plugin", "error", err)
		res.Err = err
		return res
	}

	if !src.Local {
		logger.Info("fetching plugin", "url", src.URL, "path", src.Path)
		if err := l.fetcher.Fetch(ctx, src); err != nil {
			logger.Warn("plugin fetch failed", "error", err)
			res.Err = err
			return res
		}
	}

	out, err := l.daemon.LoadPlugin(ctx, src.Path)
	res.ExitStatus = out.ExitStatus
	if err != nil {
		logger.Warn("plugin load failed", "exit", out.ExitStatus, "error", err)
		res.Err = err
		return res
	}
	logger.Info("plugin loaded", "local", src.Local, "path", src.Path)
	return res
}

// Refresh re-reads the local build directory on the next resolution, so
// artifacts built since the last run are served locally.
func (l *Loader) Refresh() {
	if l.resolver != nil && l.resolver.Index != nil {
		l.resolver.Index.Refresh()
	}
}

// Loaded reports whether dep was loaded successfully in this run.
func (l *Loader) Loaded(dep deps.Dependency) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.attempts[dep]
	return ok && res.Err == nil
}

// Results returns the outcome of every attempted dependency in attempt order.
func (l *Loader) Results() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Result, 0, len(l.order))
	for _, dep := range l.order {
		out = append(out, l.attempts[dep])
	}
	return out
}
