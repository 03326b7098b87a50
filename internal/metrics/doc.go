// Package metrics collects per-route request metrics for the edge server.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Request counts per route (proxy, static, fallback)
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Upstream health transitions
//
// The collector runs in a dedicated goroutine. Emit never blocks the request
// path: when the buffer is full the event is dropped.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Route:      "proxy",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
