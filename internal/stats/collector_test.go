package stats_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angeloszaimis/distbreaker/internal/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stats Suite")
}

var _ = Describe("Collector", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		collector *stats.Collector
		registry  *prometheus.Registry
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		registry = prometheus.NewRegistry()
		collector = stats.NewCollector(64, slog.New(slog.DiscardHandler), registry)
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("should count call outcomes per circuit", func() {
		collector.Record(stats.Event{Type: stats.EventCallSucceeded, Circuit: "payments", Duration: 10 * time.Millisecond})
		collector.Record(stats.Event{Type: stats.EventCallSucceeded, Circuit: "payments", Duration: 20 * time.Millisecond})
		collector.Record(stats.Event{Type: stats.EventCallFailed, Circuit: "payments", Duration: 5 * time.Millisecond})

		Eventually(func() int64 {
			return collector.Snapshot().Circuits["payments"].Successes
		}).Should(Equal(int64(2)))

		snap := collector.Snapshot()
		Expect(snap.Circuits["payments"].Failures).To(Equal(int64(1)))
		Expect(snap.TotalCalls).To(Equal(int64(3)))
		Expect(snap.Circuits["payments"].AvgLatency).To(BeNumerically(">", 0))
	})

	It("should track rejections separately from calls", func() {
		collector.Record(stats.Event{Type: stats.EventCallRejected, Circuit: "payments"})
		collector.Record(stats.Event{Type: stats.EventCallRejected, Circuit: "payments"})

		Eventually(func() int64 {
			return collector.Snapshot().Circuits["payments"].Rejections
		}).Should(Equal(int64(2)))
		Expect(collector.Snapshot().TotalCalls).To(BeZero())
	})

	It("should record the latest transition per circuit", func() {
		at := time.Unix(1700000000, 0).UTC()
		collector.Record(stats.Event{Type: stats.EventStateChanged, Circuit: "payments", From: "Closed", To: "Open", Timestamp: at})

		Eventually(func() string {
			return collector.Snapshot().Circuits["payments"].State
		}).Should(Equal("Open"))
		Expect(collector.Snapshot().Circuits["payments"].LastTransition.Equal(at)).To(BeTrue())
	})

	It("should expose prometheus counters", func() {
		collector.Record(stats.Event{Type: stats.EventCallSucceeded, Circuit: "payments"})
		collector.Record(stats.Event{Type: stats.EventStateChanged, Circuit: "payments", From: "Closed", To: "Open"})

		Eventually(func() float64 {
			return testutil.ToFloat64(collector.Transitions().WithLabelValues("payments", "Closed", "Open"))
		}).Should(Equal(1.0))
	})

	It("should flip the store health flag", func() {
		collector.Record(stats.Event{Type: stats.EventStoreHealth, Healthy: false})

		Eventually(func() bool {
			return collector.Snapshot().StoreUp
		}).Should(BeFalse())
	})

	It("should serve the snapshot as JSON", func() {
		collector.Record(stats.Event{Type: stats.EventCallSucceeded, Circuit: "payments"})
		Eventually(func() int64 {
			return collector.Snapshot().TotalCalls
		}).Should(Equal(int64(1)))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/stats", nil)
		collector.Handler()(rec, req)

		Expect(rec.Code).To(Equal(200))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

		var snap stats.Snapshot
		Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
		Expect(snap.Circuits).To(HaveKey("payments"))
	})

	It("should drop events rather than block when the buffer is full", func() {
		tiny := stats.NewCollector(1, slog.New(slog.DiscardHandler), prometheus.NewRegistry())
		// Never started: the buffer holds one event and the rest are dropped.
		for i := 0; i < 100; i++ {
			tiny.Record(stats.Event{Type: stats.EventCallSucceeded, Circuit: "payments"})
		}
		Expect(tiny.Snapshot().TotalCalls).To(BeZero())
	})
})
