// Package metrics publishes conversation and ingestion activity to Prometheus.
package metrics
