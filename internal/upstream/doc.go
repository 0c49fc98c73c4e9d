// Package upstream models the guarded dependencies of the guard daemon:
// named reverse-proxied targets with response time monitoring. Each
// upstream's name is the circuit id shared by every guard instance.
package upstream
