package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
	"github.com/angeloszaimis/distbreaker/internal/circuitbreaker"
	"github.com/angeloszaimis/distbreaker/internal/stats"
	"github.com/angeloszaimis/distbreaker/internal/upstream"
)

// GuardHandler serves the guarded proxy and the circuit admin API.
type GuardHandler struct {
	logger    *slog.Logger
	registry  *circuitbreaker.Registry
	upstreams map[string]*upstream.Upstream
	collector *stats.Collector
}

func NewGuardHandler(
	logger *slog.Logger,
	registry *circuitbreaker.Registry,
	upstreams []*upstream.Upstream,
	collector *stats.Collector,
) *GuardHandler {
	byName := make(map[string]*upstream.Upstream, len(upstreams))
	for _, u := range upstreams {
		byName[u.Name()] = u
	}
	return &GuardHandler{
		logger:    logger,
		registry:  registry,
		upstreams: byName,
		collector: collector,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Proxy forwards the request to the named upstream through its circuit.
// An open circuit answers 503 with a Retry-After hint without touching
// the upstream.
func (h *GuardHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	up, ok := h.upstreams[name]
	if !ok {
		http.Error(w, "unknown upstream", http.StatusNotFound)
		return
	}

	cb, err := h.registry.GetBreaker(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("Forwarding to upstream",
		slog.String("client", extractClientIP(r)),
		slog.String("upstream", name),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	start := time.Now()

	err = cb.Do(r.Context(), func(ctx context.Context) error {
		proxied := r.Clone(ctx)
		proxied.URL.Path = "/" + strings.TrimPrefix(r.URL.Path, "/upstreams/"+name+"/")

		up.ReverseProxy().ServeHTTP(wrapped, proxied)

		if wrapped.statusCode >= http.StatusInternalServerError {
			return fmt.Errorf("upstream %s answered %d", name, wrapped.statusCode)
		}
		return nil
	})

	duration := time.Since(start)

	switch {
	case circuit.IsOpen(err):
		h.emit(stats.Event{Type: stats.EventCallRejected, Timestamp: time.Now(), Circuit: name})

		var oe *circuit.OpenError
		if errors.As(err, &oe) && oe.RetryAfter > 0 {
			seconds := int(oe.RetryAfter.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
		}
		http.Error(w, "circuit open", http.StatusServiceUnavailable)

	case circuit.IsIsolated(err):
		h.emit(stats.Event{Type: stats.EventCallRejected, Timestamp: time.Now(), Circuit: name})
		http.Error(w, "circuit isolated", http.StatusServiceUnavailable)

	case err != nil:
		// The upstream's own response has already been written.
		h.emit(stats.Event{Type: stats.EventCallFailed, Timestamp: time.Now(), Circuit: name, Duration: duration})

	default:
		h.emit(stats.Event{Type: stats.EventCallSucceeded, Timestamp: time.Now(), Circuit: name, Duration: duration})
		up.RecordResponse(duration)
	}
}

// ListCircuits reports the best-effort state of every guarded circuit.
func (h *GuardHandler) ListCircuits(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]string, len(h.upstreams))
	for name := range h.upstreams {
		cb, err := h.registry.GetBreaker(name)
		if err != nil {
			continue
		}
		states[name] = cb.CurrentState(r.Context()).String()
	}
	writeJSON(w, states)
}

// GetCircuit reports one circuit's state.
func (h *GuardHandler) GetCircuit(w http.ResponseWriter, r *http.Request) {
	cb, ok := h.breakerFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]string{
		"circuit": cb.ID(),
		"state":   cb.CurrentState(r.Context()).String(),
	})
}

// IsolateCircuit forces the named circuit open until reset.
func (h *GuardHandler) IsolateCircuit(w http.ResponseWriter, r *http.Request) {
	cb, ok := h.breakerFor(w, r)
	if !ok {
		return
	}

	cb.Isolate(r.Context())
	h.logger.Info("Circuit isolated by operator", slog.String("circuit", cb.ID()))
	writeJSON(w, map[string]string{
		"circuit": cb.ID(),
		"state":   cb.CurrentState(r.Context()).String(),
	})
}

// ResetCircuit forces the named circuit closed.
func (h *GuardHandler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	cb, ok := h.breakerFor(w, r)
	if !ok {
		return
	}

	cb.Reset(r.Context())
	h.logger.Info("Circuit reset by operator", slog.String("circuit", cb.ID()))
	writeJSON(w, map[string]string{
		"circuit": cb.ID(),
		"state":   cb.CurrentState(r.Context()).String(),
	})
}

func (h *GuardHandler) breakerFor(w http.ResponseWriter, r *http.Request) (*circuitbreaker.CircuitBreaker, bool) {
	name := r.PathValue("name")
	if _, ok := h.upstreams[name]; !ok {
		http.Error(w, "unknown circuit", http.StatusNotFound)
		return nil, false
	}

	cb, err := h.registry.GetBreaker(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return cb, true
}

func (h *GuardHandler) emit(event stats.Event) {
	if h.collector == nil {
		return
	}
	h.collector.Record(event)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
