package model

import (
	"fmt"
	"math"
	"time"

	"github.com/lucijabrocic/digit-recognizer/internal/metrics"
)

// Invoker runs a classifier on one input and turns the output into a
// probability vector.
type Invoker struct {
	meta    Metadata
	metrics *metrics.Metrics
}

func NewInvoker(meta Metadata, m *metrics.Metrics) *Invoker {
	return &Invoker{meta: meta, metrics: m}
}

// Predict consumes in: the tensor is released on every return path.
// clf must be a loaded classifier; callers check readiness first.
func (inv *Invoker) Predict(clf Classifier, in *Tensor) (Probabilities, error) {
	defer in.Release()
	if clf == nil {
		panic("model: Predict called without a loaded classifier")
	}

	start := time.Now()
	raw, err := clf.Classify(in)
	if err == nil && len(raw) != len(inv.meta.Classes) {
		err = fmt.Errorf("model returned %d values, want %d", len(raw), len(inv.meta.Classes))
	}

	var probs Probabilities
	if err == nil {
		probs = Probabilities(raw)
		if inv.meta.Softmax {
			probs = Softmax(raw)
		}
	}

	if inv.metrics != nil {
		inv.metrics.ObservePrediction(time.Since(start).Seconds(), float64(probs.Max()), err)
	}
	if err != nil {
		return nil, err
	}
	return probs, nil
}

// Softmax maps logits to probabilities.
func Softmax(logits []float32) Probabilities {
	out := make(Probabilities, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Max is the largest value, or 0 for an empty vector.
func (p Probabilities) Max() float32 {
	var maxVal float32
	for i, v := range p {
		if i == 0 || v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}
