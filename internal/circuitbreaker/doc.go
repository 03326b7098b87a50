// Package circuitbreaker stops the edge server from hammering an upstream
// that keeps refusing connections.
//
// The breaker has three states:
//
//   - CLOSED: requests are proxied
//   - OPEN: the upstream failed repeatedly, requests get 503 immediately
//   - HALF-OPEN: a single probe request checks whether it recovered
//
// Usage:
//
//	cb := circuitbreaker.New(5, 10*time.Second)
//	if cb.Allow() {
//	    // proxy the request...
//	    if transportErr != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
