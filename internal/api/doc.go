// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs for run submission, POST /v1/runs/{id}/cancel.
//   - GET /v1/runs, /v1/runs/{id}, /v1/runs/{id}/result, and
//     /v1/runs/{id}/sites for status, results, and fetch aggregates.
package api
