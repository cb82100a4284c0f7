// Package deps derives the set of plugins a task definition needs.
//
// Collectors come from the metric namespaces under workflow.collect.metrics.
// Processors and publishers come from every "process" and "publish" stage
// found anywhere in the document, each stage being a list of mappings with a
// plugin_name.
package deps

import (
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/snap-telemetry/snapharness/internal/document"
	"github.com/snap-telemetry/snapharness/internal/taskspec"
)

// Kind is a plugin category.
type Kind string

// Plugin kinds, in the order dependencies are extracted.
const (
	Collector Kind = "collector"
	Processor Kind = "processor"
	Publisher Kind = "publisher"
)

// Kinds returns every plugin kind.
func Kinds() []Kind {
	return []Kind{Collector, Processor, Publisher}
}

// Dependency names one plugin a task needs. Two dependencies are the same
// plugin when both fields are equal.
type Dependency struct {
	Kind Kind
	Name string
}

// String renders "kind:name".
func (d Dependency) String() string {
	return string(d.Kind) + ":" + d.Name
}

// Set is an insertion-ordered set of dependencies. It only grows.
// It is safe for concurrent use.
type Set struct {
	mu    sync.Mutex
	order []Dependency
	seen  map[Dependency]struct{}
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[Dependency]struct{})}
}

// Add inserts d and reports whether it was new.
func (s *Set) Add(d Dependency) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[d]; ok {
		return false
	}
	s.seen[d] = struct{}{}
	s.order = append(s.order, d)
	return true
}

// Contains reports whether d is in the set.
func (s *Set) Contains(d Dependency) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[d]
	return ok
}

// Len returns the number of dependencies.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// List returns the dependencies in insertion order.
func (s *Set) List() []Dependency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Dependency(nil), s.order...)
}

// subRooted maps the second namespace segment to a plugin name for collector
// families that ship several plugins under one root.
var subRooted = map[string]map[string]string{
	"procfs": {"iface": "interface"},
	"disk":   {"filesystem": "df"},
}

// CollectorName returns the collector plugin that serves a metric namespace.
// The namespace must look like /intel/<segment1>/<segment2>[/...]. The
// plugin is normally segment1; under procfs and disk, segment2 names the
// plugin, with iface mapped to interface and filesystem mapped to df.
func CollectorName(namespace string) (string, bool) {
	rest, ok := strings.CutPrefix(namespace, "/intel/")
	if !ok {
		return "", false
	}
	segments := strings.Split(rest, "/")
	if len(segments) < 2 {
		return "", false
	}

	name := segments[0]
	if aliases, ok := subRooted[segments[0]]; ok {
		name = segments[1]
		if alias, ok := aliases[name]; ok {
			name = alias
		}
	}
	if name == "" {
		return "", false
	}
	return name, true
}

// stageKeys maps each non-collector kind to the document key of its stages.
var stageKeys = []struct {
	kind Kind
	key  string
}{
	{Processor, "process"},
	{Publisher, "publish"},
}

// Extract returns the dependencies of def: collectors in namespace order,
// then processors, then publishers, without duplicates. Namespaces that do
// not identify a collector and stage entries without a usable plugin_name
// are skipped.
func Extract(def *taskspec.Definition) []Dependency {
	set := NewSet()
	ExtractInto(set, def)
	return set.List()
}

// ExtractInto adds def's dependencies to set and returns the ones that were
// not already present, in extraction order.
func ExtractInto(set *Set, def *taskspec.Definition) []Dependency {
	var added []Dependency
	add := func(d Dependency) {
		if set.Add(d) {
			added = append(added, d)
		}
	}

	for _, ns := range def.Metrics() {
		if name, ok := CollectorName(ns); ok {
			add(Dependency{Kind: Collector, Name: name})
		}
	}

	for _, stage := range stageKeys {
		for _, name := range pluginNames(def.Root, stage.key) {
			add(Dependency{Kind: stage.kind, Name: name})
		}
	}

	return added
}

// pluginNames collects plugin_name from every element of every sequence
// stored under key.
func pluginNames(root document.Value, key string) []string {
	var names []string
	for _, stage := range root.FindAll(key) {
		if !stage.IsSequence() {
			continue
		}
		for _, item := range stage.Items() {
			v, ok := item.Get("plugin_name")
			if !ok || !v.IsScalar() {
				continue
			}
			name, err := cast.ToStringE(v.Raw())
			if err != nil {
				continue
			}
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
