// Package api hosts the HTTP server, middleware, and JSON handlers. Notable
// routes:
//   - GET /api/traffic?domain=&date= resolves one domain.
//   - POST /api/traffic/batch resolves up to server.batch_max domains.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//
// The caller's provider credential travels in the X-RapidAPI-Key header and
// is never stored.
package api
