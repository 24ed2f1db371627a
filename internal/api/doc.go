// Package api hosts the operator HTTP surface of the archiver. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the engine's current cycle, board cursor and pool
//     occupancy.
package api
