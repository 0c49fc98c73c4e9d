package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventCallSucceeded EventType = "call_succeeded"
	EventCallFailed    EventType = "call_failed"
	EventCallRejected  EventType = "call_rejected"
	EventStateChanged  EventType = "state_changed"
	EventStoreHealth   EventType = "store_health"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Circuit   string
	From      string
	To        string
	Duration  time.Duration
	Healthy   bool
}

// Collector aggregates circuit events off a buffered channel so callers
// never block on bookkeeping. Events offered while the buffer is full
// are dropped.
type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger

	calls       *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	storeUp     prometheus.Gauge
}

func NewCollector(bufferSize int, logger *slog.Logger, reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,

		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "distbreaker_calls_total",
			Help: "Guarded calls by circuit and outcome.",
		}, []string{"circuit", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "distbreaker_rejections_total",
			Help: "Calls rejected while the circuit was open or isolated.",
		}, []string{"circuit"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "distbreaker_transitions_total",
			Help: "Circuit state transitions.",
		}, []string{"circuit", "from", "to"}),
		storeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "distbreaker_store_up",
			Help: "Whether the shared store answered the last ping.",
		}),
	}

	reg.MustRegister(c.calls, c.rejections, c.transitions, c.storeUp)
	return c
}

// EventChannel is where producers push events.
func (c *Collector) EventChannel() chan<- Event {
	return c.eventCh
}

// Record offers an event without blocking; it is dropped if the buffer
// is full.
func (c *Collector) Record(event Event) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("stats event dropped", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Stats collector started")
	defer c.logger.Info("Stats collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventCallSucceeded:
		c.metrics.RecordCall(event.Circuit, true, event.Duration)
		c.calls.WithLabelValues(event.Circuit, "success").Inc()

	case EventCallFailed:
		c.metrics.RecordCall(event.Circuit, false, event.Duration)
		c.calls.WithLabelValues(event.Circuit, "failure").Inc()

	case EventCallRejected:
		c.metrics.RecordRejection(event.Circuit)
		c.rejections.WithLabelValues(event.Circuit).Inc()

	case EventStateChanged:
		c.metrics.RecordTransition(event.Circuit, event.To, event.Timestamp)
		c.transitions.WithLabelValues(event.Circuit, event.From, event.To).Inc()

	case EventStoreHealth:
		c.metrics.UpdateStoreHealth(event.Healthy)
		if event.Healthy {
			c.storeUp.Set(1)
		} else {
			c.storeUp.Set(0)
		}
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

// Transitions exposes the transition counter, mainly for tests.
func (c *Collector) Transitions() *prometheus.CounterVec {
	return c.transitions
}
