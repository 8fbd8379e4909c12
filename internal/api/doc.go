// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to trigger an asynchronous ingestion run.
//   - GET /v1/runs and /v1/runs/{run_id} to inspect sealed runs and the live
//     progress of the active one.
//   - GET /v1/runs/{run_id}/sources for persisted per-source outcomes.
package api
