// Package retry provides the bounded poll primitive used whenever the harness
// waits for the daemon to become consistent.
//
// Poll invokes an action until it reports success or the policy's budget is
// spent. The budget is counted in sleep intervals rather than wall-clock time,
// so the number of attempts for a given policy is fixed:
//
//   - Timeout 0 (or a non-positive Interval) allows exactly one attempt.
//   - Otherwise at most ceil(Timeout/Interval)+1 attempts are made.
//
// When the budget runs out the last result is still returned, together with
// a *errors.TimeoutError, so callers can report what the daemon last said.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/snap-telemetry/snapharness/internal/errors"
)

// Policy bounds a poll loop.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// MaxAttempts returns the number of times an always-failing action is invoked.
func (p Policy) MaxAttempts() int {
	if p.Timeout <= 0 || p.Interval <= 0 {
		return 1
	}
	n := int(p.Timeout / p.Interval)
	if p.Timeout%p.Interval != 0 {
		n++
	}
	return n + 1
}

// Action is one attempt. It returns its result and whether that result is
// considered a success.
type Action[T any] func(ctx context.Context) (T, bool)

// Observer is told about every attempt as it completes.
type Observer func(attempt int, ok bool)

type options struct {
	operation string
	observers []Observer
}

// Option configures a single Poll call.
type Option func(*options)

// WithOperation names the polled operation in the returned TimeoutError.
func WithOperation(name string) Option {
	return func(o *options) {
		o.operation = name
	}
}

// WithObserver registers an observer for each attempt.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// errPending marks an attempt that did not succeed yet.
var errPending = errors.New("attempt not successful")

// Poll runs action under policy p. A successful attempt returns immediately
// with a nil error. An exhausted budget returns the last result and a
// *errors.TimeoutError. A cancelled context returns the last result and the
// context's error.
func Poll[T any](ctx context.Context, p Policy, action Action[T], opts ...Option) (T, error) {
	o := options{operation: "poll"}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		last     T
		attempts int
	)
	err := goretry.Do(ctx, budget(p), func(ctx context.Context) error {
		result, ok := action(ctx)
		last = result
		attempts++
		for _, obs := range o.observers {
			obs(attempts, ok)
		}
		if ok {
			return nil
		}
		return goretry.RetryableError(errPending)
	})

	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, errPending):
		return last, errors.NewTimeoutError(o.operation, p.Timeout).WithAttempts(attempts)
	default:
		return last, err
	}
}

// budget allows another attempt while the accumulated sleep is below the
// policy timeout.
func budget(p Policy) goretry.Backoff {
	var spent time.Duration
	return goretry.BackoffFunc(func() (time.Duration, bool) {
		if p.Interval <= 0 || spent >= p.Timeout {
			return 0, true
		}
		spent += p.Interval
		return p.Interval, false
	})
}
