// Package prometheus renders engine metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [zuauth.Engine] and exposes an
// [http.Handler] suitable for a /metrics route. Counter names are
// zuauth_*_total and the single histogram is zuauth_verify_latency_seconds.
// The zuauth_posture_info series carries the engine's security posture as
// labels.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
