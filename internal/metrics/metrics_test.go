package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveLoad(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveLoad(0.5, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelReady))

	m.ObserveLoad(0.5, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelReady))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ModelLoadDuration))
}

func TestObservePrediction(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObservePrediction(0.01, 0.9, nil)
	m.ObservePrediction(0.02, 0.8, nil)
	m.ObservePrediction(0.03, 0, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Predictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionFailures))
}

func TestNotice(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.Notice("loading")
	m.Notice("loading")
	m.Notice("busy")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Notices.WithLabelValues("loading")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notices.WithLabelValues("busy")))
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.Predictions.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Predictions))
}
