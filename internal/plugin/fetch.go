package plugin

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"

	"github.com/snap-telemetry/snapharness/internal/command"
	"github.com/snap-telemetry/snapharness/internal/errors"
)

// Fetcher downloads a remote source to its Path.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) error
}

// CommandFetcher downloads with curl through the daemon's command runner,
// so the artifact lands on the daemon's side of any exec prefix.
type CommandFetcher struct {
	Runner command.Runner
}

// Fetch runs "curl -sfL <url> -o <path>" once.
func (f *CommandFetcher) Fetch(ctx context.Context, src Source) error {
	res, err := f.Runner.Run(ctx, "curl", "-sfL", src.URL, "-o", src.Path)
	if err == nil && res.ExitStatus == 0 {
		return nil
	}
	if err == nil {
		err = errors.ErrNonZeroExit
	}
	cmdErr := res.Error("curl failed", err)
	return errors.NewResolutionError("cannot download artifact", errors.Join(errors.ErrFetchFailed, cmdErr)).
		WithPlugin(string(src.Dependency.Kind), src.Dependency.Name).
		WithURL(src.URL)
}

// HTTPFetcher downloads from the harness process into FS. Use it when the
// daemon's plugin directory is mounted on the harness side.
type HTTPFetcher struct {
	FS     afero.Fs
	Client *resty.Client
}

// NewHTTPFetcher creates an HTTPFetcher with a dedicated resty client.
func NewHTTPFetcher(fs afero.Fs, timeout time.Duration) *HTTPFetcher {
	client := resty.New().SetRetryCount(0)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPFetcher{FS: fs, Client: client}
}

// Fetch downloads src.URL and writes it, executable, to src.Path.
func (f *HTTPFetcher) Fetch(ctx context.Context, src Source) error {
	fail := func(message string, cause error) error {
		return errors.NewResolutionError(message, errors.Join(errors.ErrFetchFailed, cause)).
			WithPlugin(string(src.Dependency.Kind), src.Dependency.Name).
			WithURL(src.URL)
	}

	resp, err := f.Client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(src.URL)
	if err != nil {
		return fail("cannot download artifact", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return fail("artifact store rejected request", errors.New(resp.Status()))
	}

	if err := f.FS.MkdirAll(filepath.Dir(src.Path), 0755); err != nil {
		return fail("cannot create plugin directory", err)
	}
	out, err := f.FS.OpenFile(src.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return fail("cannot create artifact file", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		return fail("cannot write artifact file", err)
	}
	if err := out.Close(); err != nil {
		return fail("cannot write artifact file", err)
	}
	return nil
}
