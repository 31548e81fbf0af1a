package model

import (
	"fmt"
	"sync"

	"github.com/born-ml/born/backend/cpu"
	bornonnx "github.com/born-ml/born/onnx"
	borntensor "github.com/born-ml/born/tensor"
)

// bornClassifier runs the model on Born's pure Go CPU backend, so the
// server needs no shared library. Born has no convolution operators; it
// serves fully connected models.
type bornClassifier struct {
	mu    sync.Mutex
	model bornonnx.Model
	shape borntensor.Shape
	meta  Metadata
}

func newBornClassifier(data []byte, meta Metadata) (*bornClassifier, error) {
	// an operator Born cannot execute must fail here, not on the first forward pass
	m, err := bornonnx.LoadFromBytes(data, cpu.New(), bornonnx.LoadOptions{StrictMode: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load ONNX model: %w", err)
	}

	shape := make(borntensor.Shape, len(meta.InputShape))
	for i, d := range meta.InputShape {
		shape[i] = int(d)
	}

	return &bornClassifier{
		model: m,
		shape: shape,
		meta:  meta,
	}, nil
}

func (c *bornClassifier) Classify(in *Tensor) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := borntensor.NewRaw(c.shape, borntensor.Float32, borntensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer raw.Release()
	copy(raw.AsFloat32(), in.Data)

	outputs, err := c.model.ForwardNamed(map[string]*borntensor.RawTensor{c.meta.InputName: raw})
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	output, ok := outputs[c.meta.OutputName]
	if !ok {
		return nil, fmt.Errorf("model produced no %q output", c.meta.OutputName)
	}
	defer output.Release()

	if output.DType() != borntensor.Float32 {
		return nil, fmt.Errorf("unexpected output dtype %v", output.DType())
	}

	out := make([]float32, output.NumElements())
	copy(out, output.AsFloat32())
	return out, nil
}

func (c *bornClassifier) Close() error {
	return nil
}
