package circuitbreaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
	"github.com/angeloszaimis/distbreaker/internal/store"
)

// CircuitBreaker is a distributed circuit breaker. The authoritative
// state lives in the store and is shared by every peer constructed with
// the same circuit id; this value holds only configuration and the
// optional local shadow. Safe for concurrent use.
//
// Automatic transitions run under a store lease so at most one peer's
// transition takes effect per lease window. HalfOpen deliberately has no
// probe lease: peers observing HalfOpen concurrently may each probe, and
// both outcomes (close on success, reopen on failure) are idempotent
// under the transition lease.
type CircuitBreaker struct {
	id     string
	cfg    config
	store  store.Store
	shadow *shadow
	logger *slog.Logger
}

// New creates a breaker for the given circuit id on top of a shared
// store. Options outside their documented ranges are rejected.
func New(id string, st store.Store, opts ...Option) (*CircuitBreaker, error) {
	cfg := config{
		failureThreshold:  DefaultFailureThreshold,
		minimumThroughput: DefaultMinimumThroughput,
		breakDuration:     DefaultBreakDuration,
		samplingDuration:  DefaultSamplingDuration,
		leaseTTL:          DefaultLeaseTTL,
		shadowEnabled:     true,
		condition:         defaultCondition,
		clock:             circuit.SystemClock(),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(id); err != nil {
		return nil, err
	}

	return &CircuitBreaker{
		id:     id,
		cfg:    cfg,
		store:  st,
		shadow: &shadow{},
		logger: cfg.logger.With(slog.String("circuit", id)),
	}, nil
}

// ID returns the circuit identifier.
func (cb *CircuitBreaker) ID() string {
	return cb.id
}

// Do runs fn under the circuit. It returns fn's own error after
// recording the outcome, a *circuit.OpenError while the circuit is
// fast-failing, or a *circuit.IsolatedError while operator-forced open.
func (cb *CircuitBreaker) Do(ctx context.Context, fn Func) error {
	state := cb.readState(ctx)

	switch state {
	case circuit.StateIsolated:
		return &circuit.IsolatedError{CircuitID: cb.id}

	case circuit.StateOpen:
		now := cb.cfg.clock.Now()
		blocked, known := cb.readBlockedUntil(ctx)

		if known && now.Before(blocked) {
			return &circuit.OpenError{CircuitID: cb.id, RetryAfter: blocked.Sub(now)}
		}

		// The break has elapsed, or its instant is gone; the blocked
		// key's TTL makes the two equivalent. Move to probing.
		if cb.transition(ctx, circuit.StateOpen, circuit.StateHalfOpen, nil) {
			state = circuit.StateHalfOpen
			break
		}
		if current := cb.readState(ctx); current == circuit.StateHalfOpen {
			// A peer won the transition; probing is not exclusive.
			state = circuit.StateHalfOpen
			break
		}

		retryAfter := cb.cfg.breakDuration
		if known {
			if remaining := blocked.Sub(now); remaining > 0 {
				retryAfter = remaining
			}
		}
		return &circuit.OpenError{CircuitID: cb.id, RetryAfter: retryAfter}
	}

	err := fn(ctx)

	if cb.cfg.condition(err) {
		metrics := cb.record(ctx, false)

		switch state {
		case circuit.StateHalfOpen:
			cb.transition(ctx, circuit.StateHalfOpen, circuit.StateOpen, err)
		case circuit.StateClosed:
			if cb.shouldTrip(metrics) {
				cb.transition(ctx, circuit.StateClosed, circuit.StateOpen, err)
			}
		}
		return err
	}

	cb.record(ctx, true)
	if state == circuit.StateHalfOpen {
		cb.transition(ctx, circuit.StateHalfOpen, circuit.StateClosed, nil)
	}
	return err
}

// Isolate forces the circuit open until Reset. It writes state directly,
// without a lease or failure counting.
func (cb *CircuitBreaker) Isolate(ctx context.Context) {
	prior := cb.readState(ctx)

	cb.store.SetState(ctx, cb.id, circuit.StateIsolated)
	if cb.cfg.shadowEnabled {
		cb.shadow.SetState(circuit.StateIsolated)
	}

	if prior != circuit.StateIsolated {
		cb.notify(prior, circuit.StateIsolated, nil)
	}
}

// Reset forces the circuit closed: it writes Closed and a fresh empty
// window, holding the transition lease when it can get it. When a peer
// holds the lease it logs a warning and writes anyway. Unlike automatic
// transitions it does not re-check the prior state, so it closes the
// circuit from any state, including Isolated.
func (cb *CircuitBreaker) Reset(ctx context.Context) {
	prior := cb.readState(ctx)

	token, ok := cb.store.TryAcquireLease(ctx, cb.id, cb.cfg.leaseTTL)
	if !ok {
		// Operator intent wins over a peer's in-flight transition.
		cb.logger.Warn("resetting without transition lease")
	} else {
		defer cb.store.ReleaseLease(ctx, cb.id, token)
	}

	cb.apply(ctx, circuit.StateClosed)
	if prior != circuit.StateClosed {
		cb.notify(prior, circuit.StateClosed, nil)
	}
}

// CurrentState reports the state this process would dispatch on right
// now. Best-effort: it may trail concurrent peers.
func (cb *CircuitBreaker) CurrentState(ctx context.Context) circuit.State {
	return cb.readState(ctx)
}

// Close disposes of the breaker. The store client is process-wide and
// owned by the caller, so there is nothing to release; Close exists so
// breakers can be managed uniformly alongside real resources.
func (cb *CircuitBreaker) Close() error {
	return nil
}

// readState prefers the store, falls back to the shadow when enabled,
// and otherwise assumes Closed.
func (cb *CircuitBreaker) readState(ctx context.Context) circuit.State {
	if s, ok := cb.store.GetState(ctx, cb.id); ok {
		return s
	}
	if cb.cfg.shadowEnabled {
		if s, ok := cb.shadow.State(); ok {
			return s
		}
	}
	return circuit.StateClosed
}

func (cb *CircuitBreaker) readBlockedUntil(ctx context.Context) (time.Time, bool) {
	if t, ok := cb.store.GetBlockedUntil(ctx, cb.id); ok {
		return t, true
	}
	if cb.cfg.shadowEnabled {
		if t, ok := cb.shadow.BlockedUntil(); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// record folds one outcome into the shared window, replacing a stale or
// absent record with a fresh one, and returns the written window.
func (cb *CircuitBreaker) record(ctx context.Context, success bool) circuit.HealthMetrics {
	now := cb.cfg.clock.Now()

	m, ok := cb.store.GetMetrics(ctx, cb.id)
	if !ok && cb.cfg.shadowEnabled {
		m, ok = cb.shadow.Metrics()
	}
	if !ok || !m.Fresh(now, cb.cfg.samplingDuration) {
		m = circuit.NewWindow(now)
	}

	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}

	cb.store.SetMetrics(ctx, cb.id, m)
	if cb.cfg.shadowEnabled {
		cb.shadow.SetMetrics(m)
	}
	return m
}

// shouldTrip is the trip predicate over the just-written window: the
// window must be fresh, hold at least the minimum throughput, and show a
// failure ratio at or above the threshold.
func (cb *CircuitBreaker) shouldTrip(m circuit.HealthMetrics) bool {
	if !m.Fresh(cb.cfg.clock.Now(), cb.cfg.samplingDuration) {
		return false
	}
	if m.Total() < cb.cfg.minimumThroughput {
		return false
	}
	return m.FailureRatio() >= cb.cfg.failureThreshold
}

// transition performs one leased automatic transition. It aborts
// silently when the lease is held elsewhere or when the re-read state no
// longer matches the precondition.
func (cb *CircuitBreaker) transition(ctx context.Context, from, to circuit.State, cause error) bool {
	token, ok := cb.store.TryAcquireLease(ctx, cb.id, cb.cfg.leaseTTL)
	if !ok {
		return false
	}
	defer cb.store.ReleaseLease(ctx, cb.id, token)

	if current := cb.readState(ctx); current != from {
		return false
	}

	cb.apply(ctx, to)
	cb.notify(from, to, cause)
	return true
}

// apply performs the target writes for a transition, then mirrors them
// to the shadow.
func (cb *CircuitBreaker) apply(ctx context.Context, to circuit.State) {
	now := cb.cfg.clock.Now()

	switch to {
	case circuit.StateOpen:
		until := now.Add(cb.cfg.breakDuration)
		cb.store.SetState(ctx, cb.id, circuit.StateOpen)
		cb.store.SetBlockedUntil(ctx, cb.id, until)
		if cb.cfg.shadowEnabled {
			cb.shadow.SetState(circuit.StateOpen)
			cb.shadow.SetBlockedUntil(until)
		}

	case circuit.StateHalfOpen:
		// blockedUntil is left alone: the next failure reopens and
		// overwrites it.
		cb.store.SetState(ctx, cb.id, circuit.StateHalfOpen)
		if cb.cfg.shadowEnabled {
			cb.shadow.SetState(circuit.StateHalfOpen)
		}

	case circuit.StateClosed:
		cb.store.SetState(ctx, cb.id, circuit.StateClosed)
		cb.store.SetMetrics(ctx, cb.id, circuit.NewWindow(now))
		if cb.cfg.shadowEnabled {
			cb.shadow.SetState(circuit.StateClosed)
			cb.shadow.SetMetrics(circuit.NewWindow(now))
			cb.shadow.ClearBlockedUntil()
		}
	}
}

// notify logs the transition and invokes the callback, swallowing any
// panic so the lease is always released.
func (cb *CircuitBreaker) notify(from, to circuit.State, cause error) {
	cb.logger.Info("circuit state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	if len(cb.cfg.onStateChange) == 0 {
		return
	}

	change := StateChange{
		CircuitID: cb.id,
		From:      from,
		To:        to,
		At:        cb.cfg.clock.Now(),
		Cause:     cause,
	}

	for _, fn := range cb.cfg.onStateChange {
		cb.invokeCallback(fn, change)
	}
}

func (cb *CircuitBreaker) invokeCallback(fn OnStateChangeFunc, change StateChange) {
	defer func() {
		if r := recover(); r != nil {
			cb.logger.Warn("state-change callback panicked",
				slog.Any("panic", r))
		}
	}()

	fn(change)
}
