package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	metricspkg "github.com/rsamf/mink/internal/observability/metrics"
)

// Endpoint handles all operations related to Prometheus-compatible telemetry.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	debug         bool
}

// NewEndpoint creates a telemetry endpoint for the given settings and
// metrics. It returns an error if telemetry is not enabled.
//
// The function does not create new metrics but uses the provided Metrics
// instance.
func NewEndpoint(settings *conf.TelemetrySettings, metrics *Metrics, debug bool) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, errors.Newf("telemetry not enabled in settings").
			Category(errors.CategoryConfiguration).
			Build()
	}

	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)
	if debug {
		RegisterDebugHandlers(mux)
	}

	return &Endpoint{
		server: &http.Server{
			Addr:              settings.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listenAddress: settings.Listen,
		metrics:       metrics,
		debug:         debug,
	}, nil
}

// Start runs the HTTP server for the telemetry endpoint in a goroutine tracked
// by wg and shuts it down once quitChan is closed.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	wg.Go(func() {
		log.Info("Telemetry endpoint starting",
			logger.String("address", e.listenAddress),
			logger.Bool("pprof", e.debug))
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Telemetry HTTP server error", logger.Error(err))
		}
	})

	wg.Go(func() {
		e.gracefulShutdown(quitChan)
	})
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	log.Info("Stopping telemetry server")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		log.Error("Telemetry server shutdown error", logger.Error(err))
	}
}

// Handler returns the endpoint's mux, for tests.
func (e *Endpoint) Handler() http.Handler {
	return e.server.Handler
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
