// Package observability wires the Prometheus registry and serves it, with
// optional pprof routes, on the telemetry listener.
package observability

import "github.com/rsamf/mink/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("telemetry")
