// Package store provides the shared-state façade for distributed
// circuits: circuit state, the sliding-window health record, the
// blocked-until instant, and a token-guarded mutual-exclusion lease.
//
// Two implementations share one key layout and wire format:
//
//   - Redis: the production store; peers in different processes see each
//     other's writes. Faults degrade to absent reads and best-effort
//     writes, never errors.
//   - Memory: an in-process store for single-instance deployments and
//     tests.
//
// Key layout, for circuit id "payments" under the default prefix:
//
//	cb:distributed:payments:state      "Closed" | "Open" | "HalfOpen" | "Isolated"
//	cb:distributed:payments:metrics    compact JSON window record
//	cb:distributed:payments:blocked    UnixNano integer string
//	cb:distributed:payments:lock       random token, short TTL
package store
