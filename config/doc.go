// Package config loads and validates the guard daemon's configuration
// from config.yaml and environment variables: the HTTP server, logging,
// the shared store connection, breaker thresholds, and the guarded
// upstreams.
package config
