package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_passes_total",
			Help: "Evaluation passes by result (ok, error, discarded, skipped)",
		},
		[]string{"result"},
	)
	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_alerts_total",
			Help: "Notifications emitted by the evaluator by kind",
		},
		[]string{"kind"},
	)
	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_fetch_duration_seconds",
			Help:    "Duration of the batch price fetch of a pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(passesTotal)
	prometheus.MustRegister(alertsTotal)
	prometheus.MustRegister(fetchDuration)
}
