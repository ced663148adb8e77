// Package api implements the HTTP REST API and WebSocket change feed for the
// smart home core.
//
// This package provides:
//   - CRUD endpoints for users and the house → floor → room → device tree
//   - a read endpoint for each device's latest reported data
//   - the audit trail of hierarchy mutations
//   - a WebSocket hub broadcasting hierarchy changes and device data reports
//   - Prometheus metrics and a JSON system metrics snapshot
//   - middleware (request ID, logging, recovery, CORS, body limit, metrics)
//
// # Errors
//
// Every error response uses the same body:
//
//	{"status": 404, "code": "not_found", "message": "User not found"}
//
// Store lookups report the first missing entity on the path. Malformed JSON
// and payloads carrying an id are rejected with 400 before anything changes.
// A failing latest-value cache yields 503 on the latest endpoint only; it
// never fails a store operation.
package api
