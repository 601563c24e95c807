// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prefix = "qrdine"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_orders_created_total",
			Help: "Total number of orders created",
		},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_order_transitions_total",
			Help: "Order status transitions by source and target status",
		},
		[]string{"from", "to"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_webhook_deliveries_total",
			Help: "Webhook deliveries by event and final outcome",
		},
		[]string{"event", "outcome"},
	)

	WebhookAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_webhook_attempts_total",
			Help: "Individual webhook HTTP attempts including retries",
		},
	)

	WebhookDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_webhook_dropped_total",
			Help: "Webhook jobs dropped because the dispatch queue was full",
		},
	)

	AICompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_ai_completions_total",
			Help: "AI chat completions by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	AICompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_ai_completion_duration_seconds",
			Help:    "Duration of AI completion calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	CronRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_cron_runs_total",
			Help: "Background job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	TablesHealed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_tables_healed_total",
			Help: "Occupied tables reset by the reconciliation job",
		},
	)
)

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
