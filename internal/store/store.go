package store

import (
	"context"
	"time"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
)

// DefaultKeyPrefix is the key namespace peers agree on by default.
const DefaultKeyPrefix = "cb:distributed"

const (
	// stateTTL bounds how long an idle circuit's state survives.
	stateTTL = 24 * time.Hour

	// keyMargin pads metrics and blocked-until TTLs so a value never
	// expires while a peer still considers it current.
	keyMargin = time.Minute
)

// Store is the failure-tolerant façade over the shared key-value store.
//
// Every method is total: a store fault is logged by the implementation
// and surfaces as absent for reads or best-effort false for writes.
// TryAcquireLease is the one exception — it fails open on a store fault
// so a broken store cannot wedge state transitions.
type Store interface {
	// GetState reads the authoritative circuit state. The second result
	// is false when the key is absent or the store is unreachable.
	GetState(ctx context.Context, id string) (circuit.State, bool)

	// SetState overwrites the circuit state.
	SetState(ctx context.Context, id string, s circuit.State) bool

	// GetMetrics reads the shared sliding-window record.
	GetMetrics(ctx context.Context, id string) (circuit.HealthMetrics, bool)

	// SetMetrics overwrites the shared sliding-window record.
	SetMetrics(ctx context.Context, id string, m circuit.HealthMetrics) bool

	// GetBlockedUntil reads the instant from which a probe may run.
	GetBlockedUntil(ctx context.Context, id string) (time.Time, bool)

	// SetBlockedUntil writes the probe instant. Writes whose TTL would be
	// non-positive are skipped and reported as success.
	SetBlockedUntil(ctx context.Context, id string, t time.Time) bool

	// TryAcquireLease attempts a conditional write of a fresh random
	// token under the circuit's lock key. It returns the token and
	// whether the caller won. On a store fault it fails open.
	TryAcquireLease(ctx context.Context, id string, ttl time.Duration) (token string, ok bool)

	// ReleaseLease deletes the lock key only if it still holds token,
	// in a single atomic round trip. Any other outcome is a no-op.
	ReleaseLease(ctx context.Context, id string, token string)
}

func stateKey(prefix, id string) string   { return prefix + ":" + id + ":state" }
func metricsKey(prefix, id string) string { return prefix + ":" + id + ":metrics" }
func blockedKey(prefix, id string) string { return prefix + ":" + id + ":blocked" }
func lockKey(prefix, id string) string    { return prefix + ":" + id + ":lock" }
