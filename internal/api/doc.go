// Package api hosts the HTTP server, middleware, and REST handlers that expose
// the fetchers to collaborators. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/transcripts/{videoID}, POST /v1/pages and POST /v1/social for content.
//   - GET /v1/browser/status, GET /v1/cache/stats and DELETE /v1/cache for operators.
//
// Fetch responses are the result envelopes themselves; the HTTP status is
// derived from errorType alone.
package api
