package circuitbreaker

import (
	"sync"
	"time"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
)

// shadow is the per-process mirror of the authoritative fields, consulted
// only when the store reads absent. It is written strictly after the
// corresponding authoritative write has been attempted, so it trails the
// store and is never preferred over a live reading.
type shadow struct {
	mutex sync.Mutex

	state    circuit.State
	hasState bool

	metrics    circuit.HealthMetrics
	hasMetrics bool

	blockedUntil time.Time
	hasBlocked   bool
}

func (s *shadow) State() (circuit.State, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state, s.hasState
}

func (s *shadow) SetState(state circuit.State) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state = state
	s.hasState = true
}

func (s *shadow) Metrics() (circuit.HealthMetrics, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.metrics, s.hasMetrics
}

func (s *shadow) SetMetrics(m circuit.HealthMetrics) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.metrics = m
	s.hasMetrics = true
}

func (s *shadow) BlockedUntil() (time.Time, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.blockedUntil, s.hasBlocked
}

func (s *shadow) SetBlockedUntil(t time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.blockedUntil = t
	s.hasBlocked = true
}

func (s *shadow) ClearBlockedUntil() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.blockedUntil = time.Time{}
	s.hasBlocked = false
}
