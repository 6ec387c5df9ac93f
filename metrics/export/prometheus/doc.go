// Package prometheus renders engine metrics for Prometheus scrapes.
//
// [NewPrometheusExporter] accepts a [credlock.Engine] and exposes an
// [http.Handler] that renders every counter in Prometheus text exposition
// format. Counter names are prefixed credlock_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
