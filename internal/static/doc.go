// Package static serves the built single-page application: existing files are
// returned with a content type inferred from their extension, every other path
// gets the SPA entry document so client-side routing can resolve it.
package static
