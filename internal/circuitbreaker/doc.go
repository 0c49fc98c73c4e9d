// Package circuitbreaker implements a circuit breaker whose state is
// shared across processes through a central store.
//
// Every peer constructed with the same circuit id reads and writes the
// same store keys: when one peer trips the circuit, the others see Open
// on their next state read and fast-fail immediately. The breaker has
// four states:
//
//   - Closed: normal operation, calls pass through
//   - Open: tripped, calls fail fast until the break elapses
//   - HalfOpen: probe calls test whether the dependency recovered
//   - Isolated: operator-forced open, left by no automatic transition;
//     Reset clears it (the stored value expires with the 24h state TTL)
//
// Usage:
//
//	cb, err := circuitbreaker.New("payments", st,
//	    circuitbreaker.WithFailureThreshold(0.5),
//	    circuitbreaker.WithMinimumThroughput(5),
//	    circuitbreaker.WithBreakDuration(30*time.Second),
//	)
//	err = cb.Do(ctx, func(ctx context.Context) error {
//	    return client.Charge(ctx, amount)
//	})
//	if circuit.IsOpen(err) {
//	    return handleFallback()
//	}
//
// Automatic transitions are serialized by a store lease; the holder
// re-reads the authoritative state before writing, so a transition a
// peer already performed becomes a no-op. When the store is unreachable
// the breaker degrades to a per-process shadow of the authoritative
// fields and keeps working locally.
package circuitbreaker
