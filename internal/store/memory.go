package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Store with the same key layout, wire formats,
// and conditional-write lease semantics as the Redis store. It backs
// single-instance deployments and tests; state held here is not shared
// across processes.
type Memory struct {
	mutex    sync.Mutex
	entries  map[string]memoryEntry
	prefix   string
	clock    circuit.Clock
	sampling time.Duration
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock injects the clock used for TTL expiry.
func WithMemoryClock(clock circuit.Clock) MemoryOption {
	return func(m *Memory) {
		m.clock = clock
	}
}

// WithMemoryKeyPrefix overrides the key namespace.
func WithMemoryKeyPrefix(prefix string) MemoryOption {
	return func(m *Memory) {
		m.prefix = prefix
	}
}

// WithMemorySamplingDuration sizes the metrics entry TTL, matching the
// Redis store's samplingDuration + margin rule.
func WithMemorySamplingDuration(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.sampling = d
	}
}

// NewMemory creates an empty in-process store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:  make(map[string]memoryEntry),
		prefix:   DefaultKeyPrefix,
		clock:    circuit.SystemClock(),
		sampling: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// get returns a live value, lazily dropping expired entries.
func (m *Memory) get(key string) (string, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if entry.expired(m.clock.Now()) {
		delete(m.entries, key)
		return "", false
	}
	return entry.value, true
}

func (m *Memory) set(key, value string, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = entry
}

func (m *Memory) GetState(ctx context.Context, id string) (circuit.State, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	val, ok := m.get(stateKey(m.prefix, id))
	if !ok {
		return circuit.StateClosed, false
	}
	s, err := circuit.ParseState(val)
	if err != nil {
		return circuit.StateClosed, false
	}
	return s, true
}

func (m *Memory) SetState(ctx context.Context, id string, s circuit.State) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.set(stateKey(m.prefix, id), s.String(), stateTTL)
	return true
}

func (m *Memory) GetMetrics(ctx context.Context, id string) (circuit.HealthMetrics, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	val, ok := m.get(metricsKey(m.prefix, id))
	if !ok {
		return circuit.HealthMetrics{}, false
	}
	var hm circuit.HealthMetrics
	if err := hm.UnmarshalText([]byte(val)); err != nil {
		return circuit.HealthMetrics{}, false
	}
	return hm, true
}

func (m *Memory) SetMetrics(ctx context.Context, id string, hm circuit.HealthMetrics) bool {
	data, err := hm.MarshalText()
	if err != nil {
		return false
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.set(metricsKey(m.prefix, id), string(data), m.sampling+keyMargin)
	return true
}

func (m *Memory) GetBlockedUntil(ctx context.Context, id string) (time.Time, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	val, ok := m.get(blockedKey(m.prefix, id))
	if !ok {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}

func (m *Memory) SetBlockedUntil(ctx context.Context, id string, t time.Time) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ttl := t.Sub(m.clock.Now()) + keyMargin
	if ttl <= 0 {
		return true
	}
	m.set(blockedKey(m.prefix, id), strconv.FormatInt(t.UnixNano(), 10), ttl)
	return true
}

func (m *Memory) TryAcquireLease(ctx context.Context, id string, ttl time.Duration) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := lockKey(m.prefix, id)
	if _, held := m.get(key); held {
		return "", false
	}

	token := uuid.NewString()
	m.set(key, token, ttl)
	return token, true
}

func (m *Memory) ReleaseLease(ctx context.Context, id string, token string) {
	if token == "" {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := lockKey(m.prefix, id)
	if val, ok := m.get(key); ok && val == token {
		delete(m.entries, key)
	}
}
