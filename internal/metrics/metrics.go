// Package metrics defines the Prometheus collectors shared by the server and the resolver.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rank"

var (
	// ChecksTotal counts finished keyword checks by outcome (FOUND, NOT_FOUND, FAILED)
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checks_total",
		Help:      "Keyword rank checks by outcome.",
	}, []string{"status"})

	// CheckDuration observes the time spent resolving one keyword
	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "check_duration_seconds",
		Help:      "Time spent resolving one keyword.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	})

	// PagesFetched counts search result pages loaded
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_fetched_total",
		Help:      "Search result pages loaded.",
	})

	// RegistryWrites counts registry write steps by step and result
	RegistryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registry_writes_total",
		Help:      "Registry write steps by step and result.",
	}, []string{"step", "result"})

	// RegistryWriteFailures counts write steps that failed after a successful scrape
	RegistryWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registry_write_failures_total",
		Help:      "Registry write steps that failed after a successful check.",
	})

	// JobsConsumed counts jobs removed from the registry by reason
	JobsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_consumed_total",
		Help:      "Keyword jobs removed from the registry.",
	}, []string{"reason"})

	// PendingJobs reports the keyword registry size as last observed
	PendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_jobs",
		Help:      "Pending keyword jobs as last observed.",
	})

	// SlotsAllocated counts slot-status units created by allocation
	SlotsAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slots_allocated_total",
		Help:      "Slot units allocated to keywords.",
	})

	// SlotsExpired counts grants transitioned to expired
	SlotsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slots_expired_total",
		Help:      "Capacity grants marked expired.",
	})

	// HTTPRequests counts API requests by route and status code
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route and status.",
	}, []string{"method", "route", "code"})
)

// Handler serves the default registry in the Prometheus text format
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
