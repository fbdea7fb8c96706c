// Package telemetry reports critical request failures to Sentry.
package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"kcalify-backend/internal/logger"
)

const flushTimeout = 2 * time.Second

// Options configure the Sentry client. An empty DSN disables reporting.
type Options struct {
	DSN         string
	Environment string
	Release     string
	// Transport overrides the HTTP transport, for tests.
	Transport sentry.Transport
}

// Reporter sends errors to Sentry. The zero value and a nil *Reporter are
// no-ops.
type Reporter struct {
	enabled bool
	log     *slog.Logger
}

// Init configures the global Sentry hub.
func Init(opts Options) (*Reporter, error) {
	r := &Reporter{log: logger.Module("telemetry")}
	if opts.DSN == "" && opts.Transport == nil {
		return r, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       1.0,
		AttachStacktrace: true,
		ServerName:       "",
		Transport:        opts.Transport,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	r.enabled = true
	r.log.Info("sentry error reporting enabled", "environment", opts.Environment)
	return r, nil
}

// scrubEvent drops request bodies and cookies. Uploaded photos never leave
// the service through error reports.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.ServerName = ""
	if event.Request != nil {
		event.Request.Data = ""
		event.Request.Cookies = ""
	}
	return event
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// CaptureError reports err tagged with the component and route that failed.
func (r *Reporter) CaptureError(err error, component, route string) {
	if !r.Enabled() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		if route != "" {
			scope.SetTag("route", route)
		}
		scope.SetLevel(sentry.LevelError)
		sentry.CaptureException(err)
	})
}

// Flush waits for queued events to be sent.
func (r *Reporter) Flush() {
	if !r.Enabled() {
		return
	}
	if !sentry.Flush(flushTimeout) {
		r.log.Warn("sentry flush timed out")
	}
}
