// Package telemetry holds the process-wide Prometheus metrics and the
// OpenTelemetry tracer used across sync, platform and API code.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_sync_runs_total",
		Help: "Account sync runs by outcome",
	}, []string{"outcome"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ordersync_sync_duration_seconds",
		Help:    "Duration of one account sync",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	OrdersImportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordersync_orders_imported_total",
		Help: "Orders upserted from the platform",
	})

	OrdersAutoProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordersync_orders_auto_processed_total",
		Help: "Orders whose stock was deducted",
	})

	OrderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_order_errors_total",
		Help: "Per-order and per-batch failures during sync",
	}, []string{"stage"})

	StockMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_stock_movements_total",
		Help: "Inventory movements written, by type",
	}, []string{"type"})

	UnmatchedItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordersync_unmatched_items_total",
		Help: "Order lines that matched no local product",
	})

	PlatformRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_platform_requests_total",
		Help: "Requests sent to the order platform",
	}, []string{"endpoint", "status"})

	PlatformRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ordersync_platform_request_duration_seconds",
		Help:    "Latency of order platform requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	TokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_token_refreshes_total",
		Help: "OAuth refresh grants by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
