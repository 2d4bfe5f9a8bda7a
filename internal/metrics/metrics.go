package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiptrack_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// CodesGenerated по исходу генерации: ok | exhausted | error.
	CodesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_codes_generated_total",
			Help: "Tracking code generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	ShipmentsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_shipments_delivered_total",
			Help: "Shipments lazily transitioned to delivered",
		},
	)

	StatusUpdateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_status_update_failures_total",
			Help: "Failed best-effort delivered status writes",
		},
	)

	NotificationsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_notifications_handled_total",
			Help: "Shipment events handled by the notifier",
		},
		[]string{"type"},
	)
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestCount, RequestDuration,
			CodesGenerated, ShipmentsDelivered, StatusUpdateFailures,
			NotificationsHandled,
		)
	})
}
