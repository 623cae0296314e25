// Package otel exports engine metrics as OpenTelemetry observable
// instruments on a caller-supplied metric.Meter.
//
// Histogram buckets are published as one cumulative gauge per bound plus a
// count gauge, using the same names as the Prometheus exporter.
package otel
