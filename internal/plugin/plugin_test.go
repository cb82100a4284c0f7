package plugin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/snap-telemetry/snapharness/internal/daemon"
	"github.com/snap-telemetry/snapharness/internal/deps"
	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/testutil"
)

const base = "https://s3-us-west-2.amazonaws.com/snap.ci.snap-telemetry.io"

func collector(name string) deps.Dependency { return deps.Dependency{Kind: deps.Collector, Name: name} }
func processor(name string) deps.Dependency { return deps.Dependency{Kind: deps.Processor, Name: name} }
func publisher(name string) deps.Dependency { return deps.Dependency{Kind: deps.Publisher, Name: name} }

func TestArtifact(t *testing.T) {
	tests := []struct {
		prefix string
		dep    deps.Dependency
		want   string
	}{
		{"snap", collector("psutil"), "snap-plugin-collector-psutil"},
		{"snap", processor("passthru"), "snap-plugin-processor-passthru"},
		{"", publisher("mock-file"), "snap-plugin-publisher-mock-file"},
		{"acme", collector("cpu"), "acme-plugin-collector-cpu"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Artifact(tt.prefix, tt.dep); got != tt.want {
				t.Errorf("Artifact() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteURL(t *testing.T) {
	tests := []struct {
		name     string
		dep      deps.Dependency
		version  string
		wantURL  string
		wantRule string
	}{
		{
			name:     "mock collector gets suffix",
			dep:      collector("mock"),
			version:  "latest",
			wantURL:  base + "/snap/latest/linux/x86_64/snap-plugin-collector-mock2",
			wantRule: "mock",
		},
		{
			name:     "allow-listed collector",
			dep:      collector("mock1"),
			version:  "2.0.0",
			wantURL:  base + "/snap/2.0.0/linux/x86_64/snap-plugin-collector-mock1",
			wantRule: "release",
		},
		{
			name:     "allow-listed processor",
			dep:      processor("passthru-grpc"),
			version:  "latest",
			wantURL:  base + "/snap/latest/linux/x86_64/snap-plugin-processor-passthru-grpc",
			wantRule: "release",
		},
		{
			name:     "allow-listed publisher",
			dep:      publisher("mock-file"),
			version:  "latest",
			wantURL:  base + "/snap/latest/linux/x86_64/snap-plugin-publisher-mock-file",
			wantRule: "release",
		},
		{
			name:     "per-plugin path",
			dep:      collector("psutil"),
			version:  "latest",
			wantURL:  base + "/plugins/snap-plugin-collector-psutil/latest/linux/x86_64/snap-plugin-collector-psutil",
			wantRule: "plugin",
		},
		{
			name:     "mock processor is not the deprecated collector",
			dep:      processor("mock"),
			version:  "1.0.0",
			wantURL:  base + "/plugins/snap-plugin-processor-mock/1.0.0/linux/x86_64/snap-plugin-processor-mock",
			wantRule: "plugin",
		},
		{
			name:     "empty version is latest",
			dep:      publisher("influxdb"),
			version:  "",
			wantURL:  base + "/plugins/snap-plugin-publisher-influxdb/latest/linux/x86_64/snap-plugin-publisher-influxdb",
			wantRule: "plugin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, rule, ok := RemoteURL(DefaultRules(), tt.dep, base+"/", tt.version, Artifact("snap", tt.dep))
			if !ok {
				t.Fatal("RemoteURL() matched no rule")
			}
			if url != tt.wantURL {
				t.Errorf("url = %q, want %q", url, tt.wantURL)
			}
			if rule != tt.wantRule {
				t.Errorf("rule = %q, want %q", rule, tt.wantRule)
			}
		})
	}

	if _, _, ok := RemoteURL(nil, collector("x"), base, "latest", "a"); ok {
		t.Error("RemoteURL() with no rules should not match")
	}
}

func newBuildFs(t *testing.T, names ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/build/linux/x86_64", 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := afero.WriteFile(fs, "/build/linux/x86_64/"+name, []byte("bin"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestLocalIndex(t *testing.T) {
	fs := newBuildFs(t, "snap-plugin-collector-mock", "snap-plugin-publisher-file", "README.md", "other-plugin-collector-x")
	if err := fs.MkdirAll("/build/linux/x86_64/snap-plugin-collector-dir", 0755); err != nil {
		t.Fatal(err)
	}

	idx, err := NewLocalIndex(fs, "/build/linux/x86_64", "snap")
	if err != nil {
		t.Fatalf("NewLocalIndex() error = %v", err)
	}
	names, err := idx.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	want := []string{"snap-plugin-collector-mock", "snap-plugin-publisher-file"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}
	if !idx.Has("snap-plugin-collector-mock") || idx.Has("README.md") {
		t.Error("Has() disagrees with Names()")
	}
}

func TestLocalIndex_MissingDir(t *testing.T) {
	idx, err := NewLocalIndex(afero.NewMemMapFs(), "/build/linux/x86_64", "")
	if err != nil {
		t.Fatalf("NewLocalIndex() error = %v", err)
	}
	names, err := idx.Names()
	if err != nil || len(names) != 0 {
		t.Errorf("Names() = %v, %v; want empty", names, err)
	}
}

func TestLocalIndex_Refresh(t *testing.T) {
	fs := newBuildFs(t, "snap-plugin-collector-mock")
	idx, err := NewLocalIndex(fs, "/build/linux/x86_64", "snap")
	if err != nil {
		t.Fatal(err)
	}
	if idx.Has("snap-plugin-publisher-file") {
		t.Fatal("Has() reports an artifact that was never built")
	}

	if err := afero.WriteFile(fs, "/build/linux/x86_64/snap-plugin-publisher-file", []byte("bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if idx.Has("snap-plugin-publisher-file") {
		t.Error("Has() re-read the directory without Refresh")
	}

	idx.Refresh()
	if !idx.Has("snap-plugin-publisher-file") {
		t.Error("Has() after Refresh misses the new artifact")
	}
	names, _ := idx.Names()
	if want := []string{"snap-plugin-collector-mock", "snap-plugin-publisher-file"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func newResolver(t *testing.T, fs afero.Fs) *Resolver {
	t.Helper()
	idx, err := NewLocalIndex(fs, "/build/linux/x86_64", "snap")
	if err != nil {
		t.Fatal(err)
	}
	return &Resolver{
		Prefix:     "snap",
		Index:      idx,
		LocalMount: "/snap/build/linux/x86_64",
		InstallDir: "/opt/snap/plugins",
		RemoteBase: base,
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := newResolver(t, newBuildFs(t, "snap-plugin-collector-mock"))

	local, err := r.Resolve(collector("mock"), "")
	if err != nil {
		t.Fatalf("Resolve(local) error = %v", err)
	}
	want := Source{
		Dependency: collector("mock"),
		Artifact:   "snap-plugin-collector-mock",
		Local:      true,
		Path:       "/snap/build/linux/x86_64/snap-plugin-collector-mock",
	}
	if local != want {
		t.Errorf("Resolve(local) = %+v, want %+v", local, want)
	}

	remote, err := r.Resolve(publisher("file"), "")
	if err != nil {
		t.Fatalf("Resolve(remote) error = %v", err)
	}
	want = Source{
		Dependency: publisher("file"),
		Artifact:   "snap-plugin-publisher-file",
		Path:       "/opt/snap/plugins/snap-plugin-publisher-file",
		URL:        base + "/plugins/snap-plugin-publisher-file/latest/linux/x86_64/snap-plugin-publisher-file",
		Rule:       "plugin",
	}
	if remote != want {
		t.Errorf("Resolve(remote) = %+v, want %+v", remote, want)
	}
}

func TestCommandFetcher(t *testing.T) {
	src := Source{
		Dependency: publisher("file"),
		URL:        base + "/plugins/snap-plugin-publisher-file/latest/linux/x86_64/snap-plugin-publisher-file",
		Path:       "/opt/snap/plugins/snap-plugin-publisher-file",
	}

	runner := testutil.NewFakeRunner().On("curl -sfL "+src.URL+" -o "+src.Path, testutil.OK(""))
	if err := (&CommandFetcher{Runner: runner}).Fetch(context.Background(), src); err != nil {
		t.Errorf("Fetch() error = %v", err)
	}

	runner = testutil.NewFakeRunner().On("curl", testutil.Fail(22, "", "curl: (22) The requested URL returned error: 404"))
	err := (&CommandFetcher{Runner: runner}).Fetch(context.Background(), src)
	var resErr *errors.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Fetch() error = %v, want *ResolutionError", err)
	}
	if !errors.Is(err, errors.ErrFetchFailed) || resErr.URL != src.URL || resErr.Name != "file" {
		t.Errorf("ResolutionError = %+v", resErr)
	}
	var cmdErr *errors.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitStatus != 22 {
		t.Errorf("Fetch() should carry the curl CommandError, got %v", err)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ELF-binary"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	f := NewHTTPFetcher(fs, time.Second)

	src := Source{Dependency: collector("psutil"), URL: srv.URL + "/artifact", Path: "/opt/snap/plugins/snap-plugin-collector-psutil"}
	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	data, err := afero.ReadFile(fs, src.Path)
	if err != nil || string(data) != "ELF-binary" {
		t.Errorf("downloaded = %q, %v", data, err)
	}

	src.URL = srv.URL + "/missing"
	if err := f.Fetch(context.Background(), src); !errors.Is(err, errors.ErrFetchFailed) {
		t.Errorf("Fetch(missing) error = %v, want ErrFetchFailed", err)
	}
}

type countingFetcher struct {
	mu      sync.Mutex
	fetched []Source
	err     error
}

func (c *countingFetcher) Fetch(_ context.Context, src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = append(c.fetched, src)
	return c.err
}

func TestLoader_LocalArtifactIsNotFetched(t *testing.T) {
	runner := testutil.NewFakeRunner().On("snaptel plugin load", testutil.OK("Plugin loaded\n"))
	fetcher := &countingFetcher{}
	l := NewLoader(newResolver(t, newBuildFs(t, "snap-plugin-collector-mock")), fetcher, daemon.New(runner, daemon.Options{}), "latest", nil)

	res, err := l.Load(context.Background(), collector("mock"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(fetcher.fetched) != 0 {
		t.Errorf("local artifact was fetched: %+v", fetcher.fetched)
	}
	if !res.Source.Local || res.ExitStatus != 0 {
		t.Errorf("Load() = %+v", res)
	}
	if runner.CallCount("snaptel plugin load /snap/build/linux/x86_64/snap-plugin-collector-mock") != 1 {
		t.Errorf("calls = %v", runner.Calls())
	}
}

func TestLoader_RemoteFetchThenLoad(t *testing.T) {
	runner := testutil.NewFakeRunner().On("snaptel plugin load /opt/snap/plugins/snap-plugin-collector-psutil", testutil.OK("Plugin loaded\n"))
	fetcher := &countingFetcher{}
	l := NewLoader(newResolver(t, newBuildFs(t)), fetcher, daemon.New(runner, daemon.Options{}), "", nil)

	if _, err := l.Load(context.Background(), collector("psutil")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0].Path != "/opt/snap/plugins/snap-plugin-collector-psutil" {
		t.Errorf("fetched = %+v", fetcher.fetched)
	}
	if !l.Loaded(collector("psutil")) {
		t.Error("Loaded() = false after a successful load")
	}
}

func TestLoader_LoadsOncePerRun(t *testing.T) {
	runner := testutil.NewFakeRunner().On("snaptel plugin load", testutil.OK("Plugin loaded\n"))
	l := NewLoader(newResolver(t, newBuildFs(t, "snap-plugin-collector-mock")), &countingFetcher{}, daemon.New(runner, daemon.Options{}), "latest", nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Load(ctx, collector("mock"))
		}()
	}
	wg.Wait()

	res, err := l.Load(ctx, collector("mock"))
	if err != nil || !res.Cached {
		t.Errorf("second Load() = %+v, %v; want cached success", res, err)
	}
	if n := runner.CallCount("snaptel plugin load"); n != 1 {
		t.Errorf("plugin load issued %d times, want 1", n)
	}
	if len(l.Results()) != 1 {
		t.Errorf("Results() = %+v", l.Results())
	}
}

func TestLoader_Failures(t *testing.T) {
	t.Run("load rejected", func(t *testing.T) {
		runner := testutil.NewFakeRunner().On("snaptel plugin load", testutil.Fail(1, "", "Error loading plugin"))
		l := NewLoader(newResolver(t, newBuildFs(t, "snap-plugin-collector-mock")), &countingFetcher{}, daemon.New(runner, daemon.Options{}), "latest", nil)

		res, err := l.Load(context.Background(), collector("mock"))
		var cmdErr *errors.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("Load() error = %v, want *CommandError", err)
		}
		if res.ExitStatus != 1 || res.Err == nil {
			t.Errorf("Load() = %+v", res)
		}
		if l.Loaded(collector("mock")) {
			t.Error("Loaded() = true after a failed load")
		}
		if _, err := l.Load(context.Background(), collector("mock")); err == nil {
			t.Error("repeated Load() should report the recorded failure")
		}
		if runner.CallCount("snaptel plugin load") != 1 {
			t.Error("failed load should not be retried")
		}
	})

	t.Run("fetch failed", func(t *testing.T) {
		runner := testutil.NewFakeRunner()
		fetchErr := errors.NewResolutionError("cannot download artifact", errors.ErrFetchFailed)
		l := NewLoader(newResolver(t, newBuildFs(t)), &countingFetcher{err: fetchErr}, daemon.New(runner, daemon.Options{}), "latest", nil)

		res, err := l.Load(context.Background(), collector("psutil"))
		if !errors.Is(err, errors.ErrFetchFailed) {
			t.Fatalf("Load() error = %v, want ErrFetchFailed", err)
		}
		if len(runner.Calls()) != 0 {
			t.Errorf("plugin load issued after fetch failure: %v", runner.Calls())
		}
		if res.ExitStatus != -1 {
			t.Errorf("ExitStatus = %d, want -1", res.ExitStatus)
		}
	})
}
