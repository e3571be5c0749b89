// Package errtrack reports deploy failures to Sentry. Without a DSN every
// method is a no-op, so callers never need to check whether tracking is on.
package errtrack

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/gorewood/briefship/internal/output"
)

// Options configures New.
type Options struct {
	DSN         string
	Release     string
	Environment string

	// beforeSend lets tests observe events without a network round trip.
	beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// Tracker sends events through its own hub.
type Tracker struct {
	hub *sentry.Hub
}

// New returns a Tracker for opts.DSN. An empty DSN returns a disabled
// Tracker and no error.
func New(opts Options) (*Tracker, error) {
	if opts.DSN == "" {
		return &Tracker{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Release:     opts.Release,
		Environment: opts.Environment,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.User = sentry.User{}
			if opts.beforeSend != nil {
				return opts.beforeSend(event, hint)
			}
			return event
		},
	})
	if err != nil {
		return &Tracker{}, output.NewUserErrorWithCause("invalid sentry_dsn: "+err.Error(), err)
	}
	return &Tracker{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Enabled reports whether events are sent anywhere.
func (t *Tracker) Enabled() bool {
	return t != nil && t.hub != nil
}

// CaptureError reports err with tags. Remote failures are tagged with their
// exit code so they can be told apart from local errors.
func (t *Tracker) CaptureError(err error, tags map[string]string) {
	if !t.Enabled() || err == nil {
		return
	}
	t.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetTag("exit_code", exitCodeTag(err))
		if output.IsCode(err, output.ExitConflict) || output.IsCode(err, output.ExitUserError) {
			scope.SetLevel(sentry.LevelWarning)
		}
		t.hub.CaptureException(err)
	})
}

// CaptureMessage reports msg at warning level.
func (t *Tracker) CaptureMessage(msg string, tags map[string]string) {
	if !t.Enabled() {
		return
	}
	t.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		t.hub.CaptureMessage(msg)
	})
}

// Flush waits up to timeout for queued events to be delivered.
func (t *Tracker) Flush(timeout time.Duration) bool {
	if !t.Enabled() {
		return true
	}
	return t.hub.Flush(timeout)
}

func exitCodeTag(err error) string {
	var exitErr *output.ExitError
	if !errors.As(err, &exitErr) {
		return "unknown"
	}
	switch exitErr.Code {
	case output.ExitUserError:
		return "user"
	case output.ExitSystemError:
		return "system"
	case output.ExitConflict:
		return "conflict"
	case output.ExitRemoteFailure:
		return "remote"
	default:
		return "unknown"
	}
}
