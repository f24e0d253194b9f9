// Package observability provides structured logging, Prometheus
// metrics, health probes, and OpenTelemetry tracing setup for the
// authorization service.
package observability
