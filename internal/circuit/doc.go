// Package circuit holds the value types shared by the store and the
// breaker engine: the four-state enum, the sliding-window health metrics
// record, and the fast-fail error types.
//
// State labels and the metrics wire format are part of the cross-process
// protocol; every peer sharing a circuit identifier must agree on them.
package circuit
