// Package metrics defines the launchpad's Prometheus collectors and the HTTP
// server exporting them.
package metrics
