package taskspec

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/snap-telemetry/snapharness/internal/errors"
)

// DefaultPattern selects every task file when no selector is given.
const DefaultPattern = "*.{yaml,yml,json}"

// Discover lists the task files under dir matching selector, relative to dir
// (slash separated) and sorted. An empty selector uses DefaultPattern; a
// plain file name selects that single file.
func Discover(fs afero.Fs, dir, selector string) ([]string, error) {
	exists, err := afero.DirExists(fs, dir)
	if err != nil || !exists {
		return nil, errors.NewConfigError("task directory not found", errors.ErrFileNotFound).WithPath(dir)
	}

	pattern, err := selectorPattern(selector)
	if err != nil {
		return nil, err
	}

	var matches []string
	err = afero.Walk(fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewConfigError("cannot list task files: "+err.Error(), errors.ErrInvalidInput).WithPath(dir)
	}

	sort.Strings(matches)
	return matches, nil
}

// Files returns the named task files that exist under dir, relative to dir
// (slash separated), sorted and without duplicates. Names are taken
// literally, never as patterns. Absolute names and parent references are
// rejected.
func Files(fs afero.Fs, dir string, names []string) ([]string, error) {
	exists, err := afero.DirExists(fs, dir)
	if err != nil || !exists {
		return nil, errors.NewConfigError("task directory not found", errors.ErrFileNotFound).WithPath(dir)
	}

	var out []string
	for _, name := range names {
		rel := filepath.ToSlash(strings.TrimSpace(name))
		if rel == "" {
			continue
		}
		if path.IsAbs(rel) {
			return nil, errors.NewConfigError("task file must be relative: "+name, errors.ErrInvalidInput)
		}
		rel = path.Clean(rel)
		if slices.Contains(strings.Split(rel, "/"), "..") {
			return nil, errors.NewConfigError("task file must not leave the task directory: "+name, errors.ErrInvalidInput)
		}
		info, err := fs.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil || info.IsDir() {
			continue
		}
		out = append(out, rel)
	}

	sort.Strings(out)
	return slices.Compact(out), nil
}

// selectorPattern validates a selector and returns the glob to match.
// Absolute selectors and parent references are rejected.
func selectorPattern(selector string) (string, error) {
	pattern := strings.TrimSpace(selector)
	if pattern == "" {
		return DefaultPattern, nil
	}

	pattern = filepath.ToSlash(pattern)
	if path.IsAbs(pattern) {
		return "", errors.NewConfigError("task selector must be relative: "+selector, errors.ErrInvalidInput)
	}
	pattern = path.Clean(pattern)
	if slices.Contains(strings.Split(pattern, "/"), "..") {
		return "", errors.NewConfigError("task selector must not leave the task directory: "+selector, errors.ErrInvalidInput)
	}
	if !doublestar.ValidatePattern(pattern) {
		return "", errors.NewConfigError("invalid task selector: "+selector, errors.ErrInvalidInput)
	}
	return pattern, nil
}

// IsTaskFile reports whether name has a task file extension.
func IsTaskFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
