// Package telemetry provides structured logging, metrics, tracing and
// solve-lifecycle events for macrosolve.
//
// The four concerns share one Config and are bundled by NewTelemetry
// into a single value that travels on the context. Logging is zerolog,
// metrics are Prometheus, tracing is OpenTelemetry with OTLP-gRPC or
// stdout export.
package telemetry
