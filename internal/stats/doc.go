// Package stats aggregates per-circuit observations: call outcomes,
// rejections, state transitions, and store connectivity. Producers push
// events onto a buffered channel and never block; a single goroutine
// folds them into counters exposed both as a JSON snapshot handler and
// as prometheus metrics.
package stats
