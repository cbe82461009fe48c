package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_sessions_created_total",
		Help: "Total number of auction sessions created",
	})

	SessionsActivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_sessions_activated_total",
		Help: "Total number of sessions transitioned to live",
	})

	SessionsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_sessions_ended_total",
		Help: "Total number of sessions that ended",
	})

	SessionsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_sessions_cancelled_total",
		Help: "Total number of sessions cancelled",
	})

	BidsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_accepted_total",
		Help: "Total number of accepted bids",
	})

	BidsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_rejected_total",
		Help: "Total number of rejected bids",
	}, []string{"reason"})

	BidSubmitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bid_submit_latency_seconds",
		Help:    "Latency of bid submissions including retry loops",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders settled as paid",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	OrdersFlaggedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_flagged_for_review_total",
		Help: "Total number of orders flagged for manual review",
	}, []string{"reason"})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Total number of gateway callbacks received",
	}, []string{"outcome"})

	CallbacksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_rejected_total",
		Help: "Total number of gateway callbacks rejected before reconciliation",
	}, []string{"reason"})

	CallbacksDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_callbacks_deduped_total",
		Help: "Total number of callbacks dropped by the idempotency window",
	})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_latency_seconds",
		Help:    "Latency of order reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	LedgerEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Total number of ledger transactions appended",
	})

	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of outbound gateway requests",
	}, []string{"operation", "result"})

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
