// Package prometheus adapts engine metrics to prometheus/client_golang.
//
// Register a [Collector] with an existing registry, or mount
// [Collector.Handler] for a standalone scrape endpoint.
package prometheus
