// Package telemetry initializes optional Sentry error reporting. Events are
// scrubbed of host and user data before they leave the process.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
)

// allowedExtra are the only extra fields kept on outgoing events.
var allowedExtra = map[string]struct{}{
	"error_type": {},
	"component":  {},
	"category":   {},
}

// Init configures the Sentry SDK and routes enhanced errors to it. It is a
// no-op when reporting is disabled.
func Init(settings *conf.SentrySettings, release string) error {
	if settings == nil || !settings.Enabled {
		return nil
	}
	if settings.DSN == "" {
		return errors.Newf("sentry enabled without a dsn").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sampleRate := settings.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}
	environment := settings.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       sampleRate,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "", // never leak the hostname
		Release:          fmt.Sprintf("mink@%s", release),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrub(event)
		},
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	logger.Global().Module("telemetry").Info("error reporting enabled",
		logger.String("environment", environment),
		logger.Float64("sample_rate", sampleRate))
	return nil
}

// scrub removes user, host and runtime details from event.
func scrub(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	event.User = sentry.User{}
	event.ServerName = ""

	for _, key := range []string{"device", "os", "runtime"} {
		delete(event.Contexts, key)
	}
	for k := range event.Extra {
		if _, ok := allowedExtra[k]; !ok {
			delete(event.Extra, k)
		}
	}
	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")
	return event
}

// Flush waits up to timeout for buffered events to be sent.
func Flush(settings *conf.SentrySettings, timeout time.Duration) {
	if settings == nil || !settings.Enabled {
		return
	}
	sentry.Flush(timeout)
}
