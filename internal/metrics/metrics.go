package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var DetectionOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_detection_outcomes_total",
		Help: "Change detection outcomes per docket check",
	},
	[]string{"outcome"},
)

var DelugeTripsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "docketwatch_deluge_trips_total",
		Help: "Dockets moved into the deluged state",
	},
)

var ExtractionAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_extraction_attempts_total",
		Help: "Text extraction attempts by strategy and result",
	},
	[]string{"strategy", "result"},
)

var BreakerOpen = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "docketwatch_breaker_open",
		Help: "1 while the summarization circuit breaker is open",
	},
	[]string{"provider"},
)

var BreakerTripsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_breaker_trips_total",
		Help: "Times the summarization circuit breaker opened",
	},
	[]string{"provider"},
)

var SummarizationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_summarizations_total",
		Help: "Summarization results by provider and outcome",
	},
	[]string{"provider", "outcome"},
)

var SummarizationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "docketwatch_summarization_duration_seconds",
		Help:    "Latency of summarization provider calls",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

var NotificationsQueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_notifications_queued_total",
		Help: "Queue items created by digest type",
	},
	[]string{"digest"},
)

var NotificationsDeliveredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_notifications_delivered_total",
		Help: "Drained queue items by digest type and status",
	},
	[]string{"digest", "status"},
)

var FanoutTruncationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_fanout_truncations_total",
		Help: "Fan-out safety limits hit while queueing",
	},
	[]string{"limit"},
)

var DrainDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "docketwatch_drain_duration_seconds",
		Help:    "Duration of a queue drain run",
		Buckets: prometheus.DefBuckets,
	},
)

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docketwatch_http_requests_total",
		Help: "Admin API requests by route, status and method",
	},
	[]string{"route", "status", "method"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "docketwatch_http_request_duration_seconds",
		Help:    "Admin API request latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "method"},
)

var registerOnce sync.Once

// Register adds every collector to reg once; later calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			DetectionOutcomesTotal,
			DelugeTripsTotal,
			ExtractionAttemptsTotal,
			BreakerOpen,
			BreakerTripsTotal,
			SummarizationsTotal,
			SummarizationDuration,
			NotificationsQueuedTotal,
			NotificationsDeliveredTotal,
			FanoutTruncationsTotal,
			DrainDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}
