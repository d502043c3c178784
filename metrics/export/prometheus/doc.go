// Package prometheus exposes goGuard metrics through client_golang.
//
// [PrometheusExporter] implements prometheus.Collector: callers either register
// it in their own registry or mount [PrometheusExporter.Handler]. Counter names
// are goguard_*_total; latency histograms are goguard_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
