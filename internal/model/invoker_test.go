package model

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucijabrocic/digit-recognizer/internal/metrics"
)

func probsMeta() Metadata {
	meta := DefaultMetadata()
	meta.Softmax = false
	return meta
}

func TestPredictReleasesInput(t *testing.T) {
	clf := &stubClassifier{out: []float32{0.01, 0.02, 0.90, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01}}
	inv := NewInvoker(probsMeta(), nil)

	in := NewTensor()
	probs, err := inv.Predict(clf, in)
	require.NoError(t, err)

	assert.Nil(t, in.Data)
	assert.Len(t, probs, 10)
	assert.InDelta(t, 0.90, probs[2], 1e-6)
}

func TestPredictReleasesInputOnError(t *testing.T) {
	clf := &stubClassifier{err: errors.New("backend exploded")}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	inv := NewInvoker(probsMeta(), m)

	in := NewTensor()
	_, err := inv.Predict(clf, in)
	assert.Error(t, err)
	assert.Nil(t, in.Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Predictions))
}

func TestPredictRejectsWrongLength(t *testing.T) {
	clf := &stubClassifier{out: []float32{0.5, 0.5}}
	inv := NewInvoker(probsMeta(), nil)

	_, err := inv.Predict(clf, NewTensor())
	assert.Error(t, err)
}

func TestPredictAppliesSoftmax(t *testing.T) {
	logits := []float32{1, 2, 8, 0, 0, 0, 0, 0, 0, -3}
	clf := &stubClassifier{out: logits}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	inv := NewInvoker(DefaultMetadata(), m)

	probs, err := inv.Predict(clf, NewTensor())
	require.NoError(t, err)

	var sum float64
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, float32(0))
		assert.LessOrEqual(t, p, float32(1))
		sum += float64(p)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, probs[2], probs.Max())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions))
}

func TestPredictPanicsWithoutClassifier(t *testing.T) {
	inv := NewInvoker(probsMeta(), nil)
	in := NewTensor()

	assert.Panics(t, func() {
		inv.Predict(nil, in)
	})
	assert.Nil(t, in.Data)
}

func TestSoftmaxStableForLargeLogits(t *testing.T) {
	probs := Softmax([]float32{1000, 1000, 0})

	assert.False(t, math.IsNaN(float64(probs[0])))
	assert.InDelta(t, 0.5, probs[0], 1e-6)
	assert.InDelta(t, 0.5, probs[1], 1e-6)
	assert.InDelta(t, 0.0, probs[2], 1e-6)
}

func TestTensorPool(t *testing.T) {
	in := NewTensor()
	assert.Equal(t, InputShape, in.Shape)
	assert.Len(t, in.Data, ImageSize*ImageSize)

	in.Data[5] = 1
	in.Release()
	in.Release()

	again := NewTensor()
	for _, v := range again.Data {
		require.Zero(t, v)
	}
	again.Release()

	_, err := TensorFromSlice(make([]float32, 10))
	assert.Error(t, err)

	full, err := TensorFromSlice(make([]float32, ImageSize*ImageSize))
	require.NoError(t, err)
	full.Release()
}

func TestMetadataValidate(t *testing.T) {
	assert.NoError(t, DefaultMetadata().Validate())

	meta := DefaultMetadata()
	meta.InputShape = []int64{1, 3, 28, 28}
	assert.Error(t, meta.Validate())

	meta = DefaultMetadata()
	meta.ImageSize = 48
	assert.Error(t, meta.Validate())

	meta = DefaultMetadata()
	meta.OutputShape = []int64{1, 1000}
	assert.Error(t, meta.Validate())
}
