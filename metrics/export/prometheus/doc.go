// Package prometheus exports engine metrics through
// github.com/prometheus/client_golang.
//
// Register a [Collector] on a prometheus.Registry and serve it with
// [Handler], preferably on a listener separate from the API.
package prometheus
