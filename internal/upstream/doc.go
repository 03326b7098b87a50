// Package upstream forwards the reserved API prefix to the configured origin.
// It rewrites the Host header to the origin's host, keeps the request path
// exactly as received, and tracks in-flight requests, response-time EWMA and
// probe health for reporting.
package upstream
