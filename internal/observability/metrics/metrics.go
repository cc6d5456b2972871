// Package metrics provides Prometheus instrumentation for poolkeeper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Oracle report metrics
	reportsTotal       *prometheus.CounterVec
	reportDuration     *prometheus.HistogramVec
	rebaseLimitedTotal *prometheus.CounterVec

	// Pool state gauges
	poolEther     *prometheus.GaugeVec
	poolShares    prometheus.Gauge
	poolShareRate prometheus.Gauge
	poolVersion   prometheus.Gauge

	// Operation metrics
	operationsTotal  *prometheus.CounterVec
	withdrawalsTotal *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	constLabels := prometheus.Labels{"service": svcName}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	// Oracle report counter
	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "oracle_reports_total",
			Help:        "Total number of oracle reports by outcome and fault code",
			ConstLabels: constLabels,
		},
		[]string{"mode", "result", "code"},
	)

	// Oracle report processing time
	reportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "oracle_report_duration_seconds",
			Help:        "Time spent validating and applying an oracle report",
			Buckets:     []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
			ConstLabels: constLabels,
		},
		[]string{"mode"},
	)

	// Reports where the positive rebase limit deferred part of an inflow
	rebaseLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "oracle_report_rebase_limited_total",
			Help:        "Accepted reports where the rebase limiter deferred an inflow or burn",
			ConstLabels: constLabels,
		},
		[]string{"source"},
	)

	// Pool ether by component, in ETH
	poolEther = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "pool_ether",
			Help:        "Pool ether by component in ETH",
			ConstLabels: constLabels,
		},
		[]string{"component"},
	)

	poolShares = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "pool_total_shares",
		Help:        "Total shares in existence, scaled down by 1e18",
		ConstLabels: constLabels,
	})

	poolShareRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "pool_share_rate",
		Help:        "Ether per share",
		ConstLabels: constLabels,
	})

	poolVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "pool_state_version",
		Help:        "Version of the committed pool state",
		ConstLabels: constLabels,
	})

	// Engine operation counter
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "pool_operations_total",
			Help:        "Total number of engine operations by outcome",
			ConstLabels: constLabels,
		},
		[]string{"operation", "status"},
	)

	// Withdrawal queue counter
	withdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "withdrawal_queue_requests_total",
			Help:        "Withdrawal requests by lifecycle stage",
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
