// Package otel binds engine counters and the verify-latency histogram to
// OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [zuauth.Engine.MetricsSnapshot] on each collection cycle. Engines also
// report zuauth_posture_info, a constant 1 whose attributes describe the
// session mode, disclosure policy and replay backend in force.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
