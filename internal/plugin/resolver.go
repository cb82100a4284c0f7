// Package plugin resolves plugin dependencies to artifacts and loads them
// into the daemon.
//
// A dependency is served from the local build directory when an artifact
// with its conventional name is present there; otherwise it is fetched from
// the remote artifact store into the daemon's plugin directory first.
package plugin

import (
	"path"
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/snap-telemetry/snapharness/internal/deps"
	"github.com/snap-telemetry/snapharness/internal/errors"
)

// DefaultPrefix is the artifact naming prefix of the upstream project.
const DefaultPrefix = "snap"

// Source is where a dependency's artifact comes from.
type Source struct {
	Dependency deps.Dependency
	Artifact   string
	Local      bool
	Path       string // as seen by the daemon
	URL        string // remote only
	Rule       string // remote only; the URL rule that matched
}

// Artifact returns the conventional artifact name for dep:
// <prefix>-plugin-<kind>-<name>.
func Artifact(prefix string, dep deps.Dependency) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "-plugin-" + string(dep.Kind) + "-" + dep.Name
}

// LocalIndex lists the artifacts present in a build directory. The directory
// is read on first use and again after Refresh; a missing directory is an
// empty index.
type LocalIndex struct {
	fs      afero.Fs
	dir     string
	pattern glob.Glob

	mu     sync.Mutex
	loaded bool
	names  map[string]bool
	err    error
}

// NewLocalIndex creates an index of dir holding entries named <prefix>-plugin-*.
func NewLocalIndex(fs afero.Fs, dir, prefix string) (*LocalIndex, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	g, err := glob.Compile(prefix + "-plugin-*")
	if err != nil {
		return nil, errors.NewConfigError("invalid artifact prefix "+prefix, errors.Join(errors.ErrInvalidInput, err))
	}
	return &LocalIndex{fs: fs, dir: dir, pattern: g}, nil
}

// Refresh makes the next lookup re-read the directory.
func (i *LocalIndex) Refresh() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.loaded = false
}

// ensureLoaded reads the directory if needed. Callers hold i.mu.
func (i *LocalIndex) ensureLoaded() {
	if i.loaded {
		return
	}
	i.loaded = true
	i.err = nil
	i.names = make(map[string]bool)
	exists, err := afero.DirExists(i.fs, i.dir)
	if err != nil || !exists {
		i.err = err
		return
	}
	infos, err := afero.ReadDir(i.fs, i.dir)
	if err != nil {
		i.err = err
		return
	}
	for _, info := range infos {
		if !info.IsDir() && i.pattern.Match(info.Name()) {
			i.names[info.Name()] = true
		}
	}
}

// Has reports whether artifact is present in the directory.
func (i *LocalIndex) Has(artifact string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ensureLoaded()
	return i.names[artifact]
}

// Names returns the indexed artifact names, sorted.
func (i *LocalIndex) Names() ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ensureLoaded()
	names := make([]string, 0, len(i.names))
	for name := range i.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, i.err
}

// Resolver decides where each dependency's artifact comes from.
type Resolver struct {
	Prefix     string
	Index      *LocalIndex
	LocalMount string // daemon-visible path of the indexed directory
	InstallDir string // daemon-visible directory downloads are written to
	RemoteBase string
	Rules      []Rule
}

// Resolve returns dep's source. An empty version resolves as "latest".
func (r *Resolver) Resolve(dep deps.Dependency, version string) (Source, error) {
	if version == "" {
		version = DefaultVersion
	}
	artifact := Artifact(r.Prefix, dep)
	src := Source{Dependency: dep, Artifact: artifact}

	if r.Index != nil && r.Index.Has(artifact) {
		src.Local = true
		src.Path = path.Join(r.LocalMount, artifact)
		return src, nil
	}

	rules := r.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	url, rule, ok := RemoteURL(rules, dep, r.RemoteBase, version, artifact)
	if !ok {
		return src, errors.NewResolutionError("no URL rule matches", errors.ErrInvalidInput).
			WithPlugin(string(dep.Kind), dep.Name)
	}
	src.URL = url
	src.Rule = rule
	src.Path = path.Join(r.InstallDir, artifact)
	return src, nil
}
