// Package handler implements the edge server's request handler. Each request
// is classified once: paths under the API prefix go to the upstream proxy,
// existing assets are served from the static root, and everything else gets
// the SPA fallback document. Assets and the fallback answer GET and HEAD only;
// other methods get 404.
package handler
