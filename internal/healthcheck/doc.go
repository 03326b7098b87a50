// Package healthcheck periodically probes the upstream API's /health endpoint
// and records the result on the upstream. The result is reported on the admin
// endpoint only; request routing never depends on it.
package healthcheck
