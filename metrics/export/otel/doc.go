// Package otel bridges goGuard counters and latency histograms to an
// OpenTelemetry meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative histogram bucket. A single callback reads
// [goGuard.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
