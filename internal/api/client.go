// Package api reads task state from the daemon's HTTP API.
//
// Responses are wrapped in a "body" object. Every GET is polled until the
// daemon answers with a non-empty body; a body that never appears is
// reported as an empty mapping together with an *errors.APIError.
package api

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/go-viper/mapstructure/v2"

	"github.com/snap-telemetry/snapharness/internal/document"
	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/logging"
	"github.com/snap-telemetry/snapharness/internal/retry"
)

// TasksPath is the task listing resource.
const TasksPath = "/v1/tasks"

// ScheduledTask is one entry of the task listing.
type ScheduledTask struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	State       string `mapstructure:"task_state"`
	Href        string `mapstructure:"href"`
	HitCount    int    `mapstructure:"hit_count"`
	MissCount   int    `mapstructure:"miss_count"`
	FailedCount int    `mapstructure:"failed_count"`
	LastFailure string `mapstructure:"last_failure_message"`
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration // per request
	Policy  retry.Policy
	Tracker *retry.Tracker
	Logger  *logging.Logger
}

// Client issues GET requests against the daemon API.
type Client struct {
	http   *resty.Client
	opts   Options
	logger *logging.Logger
}

// New creates a Client. Retries are handled by the poll loop, so resty's
// own retry is left disabled.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if opts.Timeout > 0 {
		http.SetTimeout(opts.Timeout)
	}
	return &Client{http: http, opts: opts, logger: logger}
}

type response struct {
	url    string
	status int
	body   []byte
	err    error
}

// Get polls path until the response body is non-empty and returns the
// decoded document. path may be relative to the base URL or absolute; an
// absolute URL is reduced to its path so the configured base is used.
func (c *Client) Get(ctx context.Context, path string) (document.Value, error) {
	target := requestPath(path)
	resp, err := retry.Poll(ctx, c.opts.Policy, func(ctx context.Context) (response, bool) {
		r, err := c.http.R().SetContext(ctx).Get(target)
		if err != nil {
			c.logger.Debug("api request failed", "path", target, "error", err)
			return response{url: target, err: err}, false
		}
		res := response{url: r.Request.URL, status: r.StatusCode(), body: r.Body()}
		return res, len(strings.TrimSpace(string(res.body))) > 0
	},
		retry.WithOperation("GET "+target),
		retry.WithObserver(c.opts.Tracker.Observe("api get")))

	if err != nil {
		if resp.url == "" {
			resp.url = target
		}
		cause := errors.ErrEmptyResponse
		if resp.err != nil {
			cause = errors.Join(errors.ErrEmptyResponse, resp.err)
		}
		if errors.IsTimeout(err) {
			cause = errors.Join(cause, err)
		}
		return document.Mapping(), errors.NewAPIError("no response body", cause).
			WithURL(resp.url).
			WithResponse(resp.status, string(resp.body))
	}

	if resp.status >= 400 {
		return document.Mapping(), errors.NewAPIError("request rejected", nil).
			WithURL(resp.url).
			WithResponse(resp.status, string(resp.body))
	}

	doc, err := document.FromJSON(resp.body)
	if err != nil {
		return document.Mapping(), errors.NewAPIError("malformed response", err).
			WithURL(resp.url).
			WithResponse(resp.status, string(resp.body))
	}
	return doc, nil
}

// Body polls path and returns the response's "body" object.
func (c *Client) Body(ctx context.Context, path string) (document.Value, error) {
	doc, err := c.Get(ctx, path)
	if err != nil {
		return doc, err
	}
	body, ok := doc.Get("body")
	if !ok || !body.IsMapping() {
		return document.Mapping(), errors.NewAPIError("response has no body object", errors.ErrParse).
			WithURL(path).
			WithResponse(0, doc.String())
	}
	return body, nil
}

// Tasks returns the daemon's scheduled tasks.
func (c *Client) Tasks(ctx context.Context) ([]ScheduledTask, error) {
	body, err := c.Body(ctx, TasksPath)
	if err != nil {
		return nil, err
	}
	list, ok := body.Get("ScheduledTasks")
	if !ok || list.IsNull() {
		return nil, nil
	}
	var tasks []ScheduledTask
	if err := decode(list.Interface(), &tasks); err != nil {
		return nil, errors.NewAPIError("cannot decode scheduled tasks", errors.Join(errors.ErrParse, err)).
			WithURL(TasksPath).
			WithResponse(0, list.String())
	}
	return tasks, nil
}

// FindTask returns the listing entry for id.
func (c *Client) FindTask(ctx context.Context, id string) (ScheduledTask, error) {
	tasks, err := c.Tasks(ctx)
	if err != nil {
		return ScheduledTask{}, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return ScheduledTask{}, errors.NewAPIError("task "+id+" not in listing", errors.ErrTaskNotListed).
		WithURL(TasksPath)
}

// TaskMetrics fetches a task's detail resource and returns the metric
// namespaces configured in its collect stage, in response order.
func (c *Client) TaskMetrics(ctx context.Context, href string) ([]string, error) {
	body, err := c.Body(ctx, href)
	if err != nil {
		return nil, err
	}
	metrics, ok := body.Lookup("workflow", "collect", "metrics")
	if !ok {
		return nil, nil
	}
	return metrics.Keys(), nil
}

func decode(input, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func requestPath(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || !u.IsAbs() {
		return ref
	}
	return u.RequestURI()
}
