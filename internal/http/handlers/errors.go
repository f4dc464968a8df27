// Package handlers implements the relay's HTTP endpoints.
//
// Error labels returned in the {"error":"<label>"} body. Labels are
// lowercase snake_case and stable; clients branch on them programmatically.
package handlers

const (
	errBadRequest      = "bad_request"
	errNotFound        = "not_found"
	errConflict        = "conflict"
	errRateLimited     = "rate_limited"
	errMetricsDisabled = "metrics_disabled"
	errMetricsRead     = "metrics_read_failed"
)
