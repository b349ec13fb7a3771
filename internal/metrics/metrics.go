// Package metrics holds the Prometheus collectors of the service.  They are
// registered on the default registry and served on GET /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by route pattern, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natours_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "natours_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// AuthFailuresTotal counts rejected authentication attempts by reason.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natours_auth_failures_total",
			Help: "Total number of failed authentications",
		},
		[]string{"reason"},
	)

	// RatingRecomputeTotal counts tour rating recomputations by outcome.
	RatingRecomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natours_rating_recompute_total",
			Help: "Total number of tour rating aggregate recomputations",
		},
		[]string{"outcome"},
	)

	// JobsTotal counts background jobs by queue and outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natours_jobs_total",
			Help: "Total number of background jobs processed",
		},
		[]string{"queue", "outcome"},
	)
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(route, method string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

// RecordAuthFailure counts a rejected authentication.
func RecordAuthFailure(reason string) {
	AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRatingRecompute counts a rating recomputation.
func RecordRatingRecompute(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RatingRecomputeTotal.WithLabelValues(outcome).Inc()
}

// RecordJob counts a processed background job.
func RecordJob(queue string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	JobsTotal.WithLabelValues(queue, outcome).Inc()
}
