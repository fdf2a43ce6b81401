package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by the detection pipeline
type Metrics struct {
	// Traffic: observations by status
	Observations *prometheus.CounterVec

	// Detections flagged as anomalous, by severity
	Anomalies *prometheus.CounterVec

	// Baseline gauges
	RunningMean prometheus.Gauge
	RunningStd  prometheus.Gauge

	// Scorer calls that fell back to rule + z-score only
	ScorerFallbacks *prometheus.CounterVec

	// Alert routing
	AlertsRouted     *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	ChannelFailures  *prometheus.CounterVec
	ChannelDuration  *prometheus.HistogramVec

	// Forecasting
	Predictions prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// without a registerer, collect into a private registry nobody scrapes
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Observations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_observations_total",
			Help: "Total number of ingested observations.",
		}, []string{"status"}),

		Anomalies: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_anomalies_total",
			Help: "Total number of anomalous observations by severity.",
		}, []string{"severity"}),

		RunningMean: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "guardian_running_mean",
			Help: "Current EMA mean of observed volume.",
		}),

		RunningStd: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "guardian_running_std",
			Help: "Current EMA standard deviation of observed volume.",
		}),

		ScorerFallbacks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_scorer_fallbacks_total",
			Help: "Scorer calls that degraded to a zero score.",
		}, []string{"reason"}), // reasons: unavailable, timeout, error, open

		AlertsRouted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_alerts_routed_total",
			Help: "Alerts that passed rate limiting and were dispatched.",
		}, []string{"severity"}),

		AlertsSuppressed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "guardian_alerts_suppressed_total",
			Help: "Alerts dropped by the rate limiter.",
		}),

		ChannelFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_channel_failures_total",
			Help: "Failed alert deliveries by channel.",
		}, []string{"channel"}),

		ChannelDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guardian_channel_send_duration_seconds",
			Help:    "Histogram of alert delivery latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),

		Predictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "guardian_predictions_total",
			Help: "Forecast points produced.",
		}),
	}
}
