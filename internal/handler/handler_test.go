package handler_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/distbreaker/internal/circuitbreaker"
	"github.com/angeloszaimis/distbreaker/internal/handler"
	"github.com/angeloszaimis/distbreaker/internal/stats"
	"github.com/angeloszaimis/distbreaker/internal/store"
	"github.com/angeloszaimis/distbreaker/internal/upstream"
)

func TestHandler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Handler Suite")
}

var _ = Describe("GuardHandler", func() {
	var (
		backendStatus atomic.Int32
		backend       *httptest.Server
		mux           *http.ServeMux
	)

	newMux := func(h *handler.GuardHandler) *http.ServeMux {
		m := http.NewServeMux()
		m.HandleFunc("/upstreams/{name}/", h.Proxy)
		m.HandleFunc("GET /circuits", h.ListCircuits)
		m.HandleFunc("GET /circuits/{name}", h.GetCircuit)
		m.HandleFunc("POST /circuits/{name}/isolate", h.IsolateCircuit)
		m.HandleFunc("POST /circuits/{name}/reset", h.ResetCircuit)
		return m
	}

	BeforeEach(func() {
		backendStatus.Store(http.StatusOK)
		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(int(backendStatus.Load()))
			w.Write([]byte("backend says " + r.URL.Path))
		}))
		DeferCleanup(backend.Close)

		target, err := url.Parse(backend.URL)
		Expect(err).NotTo(HaveOccurred())

		registry := circuitbreaker.NewRegistry(store.NewMemory(),
			circuitbreaker.WithMinimumThroughput(3),
			circuitbreaker.WithFailureThreshold(0.5),
			circuitbreaker.WithBreakDuration(30*time.Second),
			circuitbreaker.WithLogger(slog.New(slog.DiscardHandler)))

		collector := stats.NewCollector(64, slog.New(slog.DiscardHandler), prometheus.NewRegistry())

		h := handler.NewGuardHandler(
			slog.New(slog.DiscardHandler),
			registry,
			[]*upstream.Upstream{upstream.New("payments", target)},
			collector)
		mux = newMux(h)
	})

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		mux.ServeHTTP(rec, req)
		return rec
	}

	Describe("proxying", func() {
		It("should forward requests to the upstream", func() {
			rec := do("GET", "/upstreams/payments/charge")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("/charge"))
		})

		It("should answer 404 for unknown upstreams", func() {
			rec := do("GET", "/upstreams/nope/")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should pass upstream errors through and eventually trip", func() {
			backendStatus.Store(http.StatusBadGateway)

			for i := 0; i < 3; i++ {
				rec := do("GET", "/upstreams/payments/charge")
				Expect(rec.Code).To(Equal(http.StatusBadGateway))
			}

			rec := do("GET", "/upstreams/payments/charge")
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Header().Get("Retry-After")).NotTo(BeEmpty())
		})

		It("should not count client errors as failures", func() {
			backendStatus.Store(http.StatusNotFound)

			for i := 0; i < 5; i++ {
				rec := do("GET", "/upstreams/payments/missing")
				Expect(rec.Code).To(Equal(http.StatusNotFound))
			}

			rec := do("GET", "/upstreams/payments/missing")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("admin API", func() {
		It("should list circuit states", func() {
			rec := do("GET", "/circuits")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var states map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &states)).To(Succeed())
			Expect(states).To(HaveKeyWithValue("payments", "Closed"))
		})

		It("should report one circuit's state", func() {
			rec := do("GET", "/circuits/payments")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["state"]).To(Equal("Closed"))
		})

		It("should isolate and reset a circuit", func() {
			rec := do("POST", "/circuits/payments/isolate")
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = do("GET", "/upstreams/payments/charge")
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

			rec = do("POST", "/circuits/payments/reset")
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = do("GET", "/upstreams/payments/charge")
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should answer 404 for unknown circuits", func() {
			Expect(do("GET", "/circuits/nope").Code).To(Equal(http.StatusNotFound))
			Expect(do("POST", "/circuits/nope/isolate").Code).To(Equal(http.StatusNotFound))
		})
	})
})
