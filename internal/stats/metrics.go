package stats

import (
	"sync"
	"time"
)

type Metrics struct {
	mutex     sync.RWMutex
	circuits  map[string]*circuitCounts
	storeUp   bool
	startTime time.Time
}

type circuitCounts struct {
	successes      int64
	failures       int64
	rejections     int64
	state          string
	lastTransition time.Time
	ewmaLatency    time.Duration
	hasEWMA        bool
}

const ewmaAlpha = 0.2

type Snapshot struct {
	Uptime     time.Duration           `json:"uptime"`
	StoreUp    bool                    `json:"store_up"`
	TotalCalls int64                   `json:"total_calls"`
	Circuits   map[string]CircuitStats `json:"circuits"`
}

type CircuitStats struct {
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Rejections     int64         `json:"rejections"`
	State          string        `json:"state,omitempty"`
	LastTransition time.Time     `json:"last_transition"`
	AvgLatency     time.Duration `json:"avg_latency"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		circuits:  make(map[string]*circuitCounts),
		storeUp:   true,
		startTime: time.Now(),
	}
}

func (m *Metrics) counts(circuit string) *circuitCounts {
	c, ok := m.circuits[circuit]
	if !ok {
		c = &circuitCounts{}
		m.circuits[circuit] = c
	}
	return c
}

func (m *Metrics) RecordCall(circuit string, success bool, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := m.counts(circuit)
	if success {
		c.successes++
	} else {
		c.failures++
	}

	//ewma = (1 - α) * ewma + α * latest
	if !c.hasEWMA {
		c.ewmaLatency = duration
		c.hasEWMA = true
	} else {
		c.ewmaLatency = time.Duration((1-ewmaAlpha)*float64(c.ewmaLatency) + ewmaAlpha*float64(duration))
	}
}

func (m *Metrics) RecordRejection(circuit string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.counts(circuit).rejections++
}

func (m *Metrics) RecordTransition(circuit, state string, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := m.counts(circuit)
	c.state = state
	c.lastTransition = at
}

func (m *Metrics) UpdateStoreHealth(healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.storeUp = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		StoreUp:  m.storeUp,
		Circuits: make(map[string]CircuitStats, len(m.circuits)),
	}

	for name, c := range m.circuits {
		snap.TotalCalls += c.successes + c.failures
		snap.Circuits[name] = CircuitStats{
			Successes:      c.successes,
			Failures:       c.failures,
			Rejections:     c.rejections,
			State:          c.state,
			LastTransition: c.lastTransition,
			AvgLatency:     c.ewmaLatency,
		}
	}

	return snap
}
