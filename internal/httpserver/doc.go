// Package httpserver wraps http.Server with address validation, a separate
// bind step so startup fails fast on a taken port, and graceful shutdown.
package httpserver
