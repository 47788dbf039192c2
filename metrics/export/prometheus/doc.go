// Package prometheus renders engine metrics in the Prometheus text
// exposition format.
//
// [PrometheusExporter.Handler] serves a scrape endpoint; [PrometheusExporter.Render]
// produces the same output as a string. Rendering reads a single
// [authcore.Engine.MetricsSnapshot], so a scrape never blocks the engine's
// hot paths.
//
// # What this package must NOT do
//
//   - Own an http.Server; callers mount the handler.
//   - Mutate engine state.
package prometheus
