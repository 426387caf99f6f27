// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid_filter"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

var (
	// OperationsTotal counts service operations by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorgraph_operations_total",
			Help: "Total number of graph service operations",
		},
		[]string{"operation", "outcome"},
	)

	// OperationDuration measures end-to-end operation latency, engine time
	// included.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisorgraph_operation_duration_seconds",
			Help:    "Duration of graph service operations in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// ResultNodes tracks how many distinct entities a query returns.
	ResultNodes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisorgraph_result_nodes",
			Help:    "Number of distinct nodes returned per operation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)

	// QueryShapes counts compiled queries by traversal shape.
	QueryShapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorgraph_query_shapes_total",
			Help: "Compiled queries by traversal shape",
		},
		[]string{"shape"},
	)

	// CacheLookups counts result cache hits and misses.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorgraph_cache_lookups_total",
			Help: "Result cache lookups",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts requests by method, route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorgraph_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisorgraph_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)
)
