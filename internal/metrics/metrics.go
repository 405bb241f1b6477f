// Package metrics declares the prometheus collectors shared by the store,
// the graph builder and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreSavesTotal counts aggregate-blob writes by outcome
	// (ok, evicted_retry_ok, dropped).
	StoreSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginalia_store_saves_total",
			Help: "Annotation store save attempts by outcome",
		},
		[]string{"outcome"},
	)

	// StoreEvictionsTotal counts document collections evicted under quota pressure.
	StoreEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marginalia_store_evictions_total",
			Help: "Document collections evicted to free storage quota",
		},
	)

	// LinkTogglesTotal counts toggleLink calls by result (created, removed, noop).
	LinkTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginalia_link_toggles_total",
			Help: "Link toggle operations by result",
		},
		[]string{"result"},
	)

	// GraphRebuildDuration measures full node/edge recomputation.
	GraphRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marginalia_graph_rebuild_duration_seconds",
			Help:    "Duration of graph rebuilds in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// GraphNodes tracks the node count of the last rebuild by kind.
	GraphNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marginalia_graph_nodes",
			Help: "Nodes in the most recent graph by kind",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal counts API requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginalia_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)
)
