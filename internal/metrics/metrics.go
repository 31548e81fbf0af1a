// Package metrics provides Prometheus metrics for the digit recognizer.
// It covers model loading, inference, and the pages connected to the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	// Model lifecycle
	ModelLoadDuration prometheus.Histogram // Time spent fetching and deserializing the model
	ModelReady        prometheus.Gauge     // 1 once the model is usable, 0 otherwise

	// Inference
	Predictions          prometheus.Counter   // Successful predictions
	PredictionFailures   prometheus.Counter   // Failed forward passes
	InferenceLatency     prometheus.Histogram // Forward pass latency
	PredictionConfidence prometheus.Histogram // Winning class probability

	// Pages
	ActivePages prometheus.Gauge       // Connected page controllers
	Notices     *prometheus.CounterVec // Notices shown to users, by kind
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ModelLoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_load_seconds",
			Help:    "Time spent fetching and deserializing the classifier",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ModelReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_ready",
			Help: "Whether the classifier has been loaded (1) or not (0)",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of successful predictions",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed predictions",
		}),
		InferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Classifier forward pass latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		PredictionConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of the winning class probability",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ActivePages: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_pages",
			Help: "Number of connected drawing pages",
		}),
		Notices: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notices_total",
			Help: "Notices shown to users, by kind",
		}, []string{"kind"}),
	}
}

// ObserveLoad records the outcome of the one-time model load.
func (m *Metrics) ObserveLoad(seconds float64, ok bool) {
	m.ModelLoadDuration.Observe(seconds)
	if ok {
		m.ModelReady.Set(1)
	} else {
		m.ModelReady.Set(0)
	}
}

// ObservePrediction records a completed forward pass.
func (m *Metrics) ObservePrediction(seconds float64, confidence float64, err error) {
	m.InferenceLatency.Observe(seconds)
	if err != nil {
		m.PredictionFailures.Inc()
		return
	}
	m.Predictions.Inc()
	m.PredictionConfidence.Observe(confidence)
}

// Notice counts a notice of the given kind.
func (m *Metrics) Notice(kind string) {
	m.Notices.WithLabelValues(kind).Inc()
}
