package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
	Init(prometheus.DefaultRegisterer, true)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	transformPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_points_total",
			Help: "Transformed points by outcome.",
		},
		[]string{"outcome"},
	)

	transformRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transform_retries_total",
			Help: "Points retried with another operation after the preferred one failed.",
		},
	)

	transformFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transform_fallbacks_total",
			Help: "Points transformed by a fallback operation outside every area of use.",
		},
	)

	transformNoOperation = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transform_no_operation_total",
			Help: "Points for which no candidate operation could be applied.",
		},
	)

	opCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "op_cache_results_total",
			Help: "Prepared operation cache results by outcome.",
		},
		[]string{"outcome"},
	)

	gridFetch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_fetch_total",
			Help: "Grid lookups by result.",
		},
		[]string{"result"},
	)

	initLookup = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "init_lookup_total",
			Help: "Init file section lookups by source and result.",
		},
		[]string{"source", "result"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "projd_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		transformPoints, transformRetries, transformFallbacks, transformNoOperation,
		opCacheResults, gridFetch, initLookup, buildInfo,
	}
}

// Init registers the service vectors with reg. A collector already present
// in reg is left alone, so Init can be called once per registry.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil || !on {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func AddTransformPoints(outcome string, n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	transformPoints.WithLabelValues(outcome).Add(float64(n))
}

func IncTransformRetry() {
	if enabled.Load() {
		transformRetries.Inc()
	}
}

func IncTransformFallback() {
	if enabled.Load() {
		transformFallbacks.Inc()
	}
}

func IncTransformNoOperation() {
	if enabled.Load() {
		transformNoOperation.Inc()
	}
}

func ObserveOpCache(outcome string) {
	if enabled.Load() {
		opCacheResults.WithLabelValues(outcome).Inc()
	}
}

func ObserveGridFetch(result string) {
	if enabled.Load() {
		gridFetch.WithLabelValues(result).Inc()
	}
}

// InitLookupObserver returns a callback labelled with source, in the shape
// the init resolvers expect.
func InitLookupObserver(source string) func(result string) {
	return func(result string) {
		if enabled.Load() {
			initLookup.WithLabelValues(source, result).Inc()
		}
	}
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
