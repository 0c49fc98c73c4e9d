// Package handler serves the guard daemon's HTTP surface: the
// circuit-guarded reverse proxy under /upstreams/{name}/ and the admin
// API for inspecting, isolating, and resetting circuits.
package handler
