package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livereload",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Control surface requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "livereload",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Control surface request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	reloadRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livereload",
		Subsystem: "http",
		Name:      "reload_requests_total",
		Help:      "Forced reloads requested over HTTP, by outcome (ok, busy, io, abi, host_mismatch, ...).",
	}, []string{"outcome"})

	reloadWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "livereload",
		Subsystem: "http",
		Name:      "reload_wait_seconds",
		Help:      "Time a POST /reload waited for the runner to finish the reload.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, reloadRequests, reloadWait)
}

// observeReload records one forced reload request.
func observeReload(outcome string, waited time.Duration) {
	reloadRequests.WithLabelValues(outcome).Inc()
	reloadWait.Observe(waited.Seconds())
}

// MetricsMiddleware counts requests by chi route pattern. The pattern is only
// known once routing is done, so labels are read after the handler returns.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := routeLabel(r)
		requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(statusOf(ww))).Inc()
		requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// statusOf treats a handler that never wrote a header as 200.
func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// routeLabel is the chi route pattern, "unmatched" for requests chi routed
// nowhere, or the raw path outside a chi router.
func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return r.URL.Path
	}
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}
