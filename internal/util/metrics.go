package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_orders_completed_total",
		Help: "Total number of orders completed",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_orders_deleted_total",
		Help: "Total number of deleted orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_orders_failed_total",
		Help: "Total number of failed order operations",
	}, []string{"operation", "reason"})

	OrderCreateCompensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_order_create_compensations_total",
		Help: "Orders deleted because their items could not be inserted",
	})

	StatusSyncLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bakery_status_sync_latency_seconds",
		Help:    "Latency of stock status synchronization",
		Buckets: prometheus.DefBuckets,
	})

	StatusWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_status_writes_total",
		Help: "Stock status changes persisted, by new status",
	}, []string{"status"})

	StatusWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_status_write_failures_total",
		Help: "Stock status writes that failed",
	})

	StatusWriteStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_status_write_stale_total",
		Help: "Stock status writes skipped because the ingredient changed since it was read",
	})

	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_reconcile_runs_total",
		Help: "Full inventory reconciliations, by trigger",
	}, []string{"trigger"})

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
