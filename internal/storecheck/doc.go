// Package storecheck watches connectivity to the shared store by
// pinging it on an interval and reporting up/down changes to the stats
// collector.
package storecheck
