package metrics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fundamentos/dashboard-edge/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
		time.Sleep(10 * time.Millisecond) // Allow goroutine to finish
	})

	Describe("Start and event processing", func() {
		It("should process EventRequestReceived", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventRequestReceived,
				Timestamp: time.Now(),
				Route:     "proxy",
			})

			Eventually(func() int64 {
				return collector.Snapshot().Routes["proxy"].Requests
			}).Should(Equal(int64(1)))
		})

		It("should process EventResponseCompleted", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventResponseCompleted,
				Timestamp:  time.Now(),
				Route:      "fallback",
				Duration:   100 * time.Millisecond,
				StatusCode: 200,
			})

			Eventually(func() int64 {
				return collector.Snapshot().Routes["fallback"].StatusCodes[200]
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot().Routes["fallback"].AvgResponse).To(Equal(100 * time.Millisecond))
		})

		It("should process EventHealthChanged", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventHealthChanged,
				Timestamp: time.Now(),
				Healthy:   true,
			})

			Eventually(func() *metrics.UpstreamHealth {
				return collector.Snapshot().Upstream
			}).ShouldNot(BeNil())
			Expect(collector.Snapshot().Upstream.Healthy).To(BeTrue())
		})

		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{
					Type:  metrics.EventRequestReceived,
					Route: "static",
				})
			}

			collector.Start(ctx)
			cancel()

			Eventually(func() int64 {
				return collector.Snapshot().Routes["static"].Requests
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Emit", func() {
		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, log)
			small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Route: "proxy"})
			small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Route: "proxy"})

			small.Start(ctx)
			Eventually(func() int64 {
				return small.Snapshot().Routes["proxy"].Requests
			}).Should(Equal(int64(1)))
			Consistently(func() int64 {
				return small.Snapshot().Routes["proxy"].Requests
			}, 50*time.Millisecond).Should(Equal(int64(1)))
		})

		It("should be a no-op on a nil collector", func() {
			var nilCollector *metrics.Collector
			Expect(func() {
				nilCollector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			}).NotTo(Panic())
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Route: "proxy"})
			Eventually(func() int64 { return collector.Snapshot().TotalRequests }).Should(Equal(int64(1)))

			w := httptest.NewRecorder()
			collector.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(w.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.TotalRequests).To(Equal(int64(1)))
			Expect(snap.Routes).To(HaveKey("proxy"))
		})
	})
})
