// Package taskspec reads task definitions from disk. A task file is YAML or
// JSON; environment variable references are substituted into the raw text
// before it is parsed.
package taskspec

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/snap-telemetry/snapharness/internal/document"
	"github.com/snap-telemetry/snapharness/internal/errors"
)

// Definition is a parsed task file. It is not modified after Read returns.
type Definition struct {
	Path   string          // Path the file was read from
	Name   string          // Base name of the file, used in reports and on the daemon side
	Format document.Format // Serialization the file was parsed as
	Root   document.Value  // Always a mapping
}

// Metrics returns the metric namespaces declared under workflow.collect.metrics
// in document order. A definition without that key declares none.
func (d *Definition) Metrics() []string {
	metrics, ok := d.Root.Lookup("workflow", "collect", "metrics")
	if !ok || !metrics.IsMapping() {
		return nil
	}
	return metrics.Keys()
}

// EnvFunc looks up an environment variable.
type EnvFunc func(name string) (string, bool)

// Reader loads task definitions.
type Reader struct {
	FS  afero.Fs
	Env EnvFunc
}

// NewReader returns a Reader over fs. A nil env uses the process environment.
func NewReader(fs afero.Fs, env EnvFunc) *Reader {
	if env == nil {
		env = os.LookupEnv
	}
	return &Reader{FS: fs, Env: env}
}

// FormatFromPath picks the format by extension: .json is JSON, anything
// else is YAML.
func FormatFromPath(path string) document.Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return document.JSON
	}
	return document.YAML
}

// Read loads, templates and parses the task file at path. An empty format
// is derived from the file extension.
func (r *Reader) Read(path string, format document.Format) (*Definition, error) {
	if format == "" {
		format = FormatFromPath(path)
	}

	data, err := afero.ReadFile(r.FS, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError("task file not found", errors.ErrFileNotFound).WithPath(path)
		}
		return nil, errors.NewConfigError("cannot read task file: "+err.Error(), errors.ErrFileNotFound).WithPath(path)
	}

	root, err := document.Decode([]byte(r.ExpandEnv(string(data))), format)
	if err != nil {
		return nil, errors.NewConfigError("cannot parse task file", err).WithPath(path)
	}
	if !root.IsMapping() {
		return nil, errors.NewConfigError("task document must be a mapping, got "+root.Kind().String(), errors.ErrParse).
			WithPath(path)
	}

	return &Definition{
		Path:   path,
		Name:   filepath.Base(path),
		Format: format,
		Root:   root,
	}, nil
}

var envRef = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)|\$\{([^}]+)\}`)

// ExpandEnv replaces $NAME and ${NAME} with the variable's value. Unset
// variables become the empty string. Any other "$" is left alone.
func (r *Reader) ExpandEnv(s string) string {
	lookup := r.Env
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		value, _ := lookup(name)
		return value
	})
}

// OverlayEnv returns an EnvFunc that consults the dotenv file at path before
// falling back to base. An empty path returns base unchanged.
func OverlayEnv(fs afero.Fs, path string, base EnvFunc) (EnvFunc, error) {
	if base == nil {
		base = os.LookupEnv
	}
	if path == "" {
		return base, nil
	}

	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError("env file not found", errors.ErrFileNotFound).WithPath(path)
		}
		return nil, errors.NewConfigError("cannot open env file: "+err.Error(), errors.ErrFileNotFound).WithPath(path)
	}
	defer func() { _ = f.Close() }()

	overlay, err := godotenv.Parse(f)
	if err != nil {
		return nil, errors.NewConfigError("cannot parse env file: "+err.Error(), errors.ErrParse).WithPath(path)
	}

	return func(name string) (string, bool) {
		if v, ok := overlay[name]; ok {
			return v, true
		}
		return base(name)
	}, nil
}
