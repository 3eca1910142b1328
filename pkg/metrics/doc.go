// Package metrics exposes peervault's Prometheus metrics (peer counts,
// session state, document size, blob store stats, GC and cloud-sync
// outcomes) plus a generic component health checker used by the daemon's
// HTTP health endpoints.
package metrics
