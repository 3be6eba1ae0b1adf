// Package metrics holds the prometheus collectors exported on /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the application registry; it carries process and Go runtime collectors
var Registry = prometheus.NewRegistry()

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locallib",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "locallib",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locallib",
		Name:      "http_panics_total",
		Help:      "Handler panics recovered, by request method.",
	}, []string{"method"})

	// CascadeDeletes counts completed delete policies by entity kind and outcome (deleted, absent, partial)
	CascadeDeletes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locallib",
		Name:      "cascade_deletes_total",
		Help:      "Author and genre delete requests by outcome.",
	}, []string{"kind", "outcome"})

	// CascadeMutations counts dependent-record mutations issued by a delete policy
	CascadeMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locallib",
		Name:      "cascade_mutations_total",
		Help:      "Dependent records deleted or detached during cascades.",
	}, []string{"kind", "op", "result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequests,
		HTTPDuration,
		HTTPPanics,
		CascadeDeletes,
		CascadeMutations,
	)
}
