package plugin

import (
	"strings"

	"github.com/snap-telemetry/snapharness/internal/deps"
)

// DefaultVersion is used when no plugin version is configured.
const DefaultVersion = "latest"

// platform is the only build platform the artifact store publishes for.
const platform = "linux/x86_64"

// Rule maps a dependency to a remote artifact URL.
type Rule struct {
	Name  string
	Match func(dep deps.Dependency) bool
	URL   func(base, version, artifact string) string
}

// legacyNames are published under the shared snap release path rather than
// a per-plugin path.
var legacyNames = map[string]bool{
	"mock1":          true,
	"mock2":          true,
	"mock2-grpc":     true,
	"passthru":       true,
	"passthru-grpc":  true,
	"mock-file":      true,
	"mock-file-grpc": true,
}

// DefaultRules returns the artifact store's URL rules in evaluation order.
// The last rule matches every dependency.
func DefaultRules() []Rule {
	return []Rule{
		{
			// The bare mock collector is deprecated; its successor ships as mock2.
			Name: "mock",
			Match: func(dep deps.Dependency) bool {
				return dep.Kind == deps.Collector && dep.Name == "mock"
			},
			URL: func(base, version, artifact string) string {
				return releaseURL(base, version, artifact) + "2"
			},
		},
		{
			Name: "release",
			Match: func(dep deps.Dependency) bool {
				return legacyNames[dep.Name]
			},
			URL: releaseURL,
		},
		{
			Name:  "plugin",
			Match: func(deps.Dependency) bool { return true },
			URL: func(base, version, artifact string) string {
				return join(base, "plugins", artifact, version, platform, artifact)
			},
		},
	}
}

func releaseURL(base, version, artifact string) string {
	return join(base, "snap", version, platform, artifact)
}

func join(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// RemoteURL evaluates rules in order and returns the URL built by the first
// match, along with that rule's name. ok is false when nothing matches.
func RemoteURL(rules []Rule, dep deps.Dependency, base, version, artifact string) (url, rule string, ok bool) {
	if version == "" {
		version = DefaultVersion
	}
	for _, r := range rules {
		if r.Match(dep) {
			return r.URL(base, version, artifact), r.Name, true
		}
	}
	return "", "", false
}
