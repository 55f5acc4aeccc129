package reloader

import "github.com/prometheus/client_golang/prometheus"

var (
	reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livereload",
			Subsystem: "reloader",
			Name:      "reloads_total",
			Help:      "Reload cycles by result",
		},
		[]string{"result"},
	)

	reloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "livereload",
			Subsystem: "reloader",
			Name:      "reload_duration_seconds",
			Help:      "Duration of reload cycles (unload, reopen, reload) in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
	)

	updatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "livereload",
			Subsystem: "reloader",
			Name:      "updates_total",
			Help:      "update calls forwarded to a loaded artifact",
		},
	)

	watchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livereload",
			Subsystem: "reloader",
			Name:      "watch_events_total",
			Help:      "Debounced watch events drained, by whether they matched the artifact",
		},
		[]string{"match"},
	)

	loadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "livereload",
			Subsystem: "reloader",
			Name:      "loaded",
			Help:      "1 while an artifact is loaded",
		},
	)

	stateBytesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "livereload",
			Subsystem: "reloader",
			Name:      "state_bytes",
			Help:      "Size of the state buffer in bytes",
		},
	)
)

func init() {
	prometheus.MustRegister(reloadsTotal, reloadDuration, updatesTotal, watchEventsTotal, loadedGauge, stateBytesGauge)
}
