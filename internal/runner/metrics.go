package runner

import "github.com/prometheus/client_golang/prometheus"

var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "livereload",
		Subsystem: "runner",
		Name:      "ticks_total",
		Help:      "Ticks driven by the runner",
	})
	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "livereload",
		Subsystem: "runner",
		Name:      "update_duration_seconds",
		Help:      "Time spent in update per tick",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
	reloadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "livereload",
		Subsystem: "runner",
		Name:      "reload_errors_total",
		Help:      "Reload errors observed by the runner (polled and forced)",
	})
)

func init() {
	prometheus.MustRegister(ticksTotal, tickDuration, reloadErrorsTotal)
}
