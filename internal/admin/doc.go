// Package admin serves operational endpoints on a listener separate from the
// public one, so the edge server's own routes stay limited to the API proxy
// and the SPA.
package admin
