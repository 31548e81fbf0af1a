package model

import (
	"fmt"
	"sync"
)

// ImageSize is the spatial resolution the classifier expects.
const ImageSize = 28

// InputShape is the layout produced by the preprocessor: batch, height, width, channel.
var InputShape = []int64{1, ImageSize, ImageSize, 1}

type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// Softmax is set when the model emits raw logits.
	Softmax bool `json:"softmax"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// Probabilities holds one value per class, in class index order.
type Probabilities []float32

// Tensor is a preprocessed model input. Its backing array comes from a pool
// and must be handed back with Release once inference is done.
type Tensor struct {
	Shape []int64
	Data  []float32
}

var tensorPool = sync.Pool{
	New: func() any {
		buf := make([]float32, ImageSize*ImageSize)
		return &buf
	},
}

// NewTensor returns a zeroed [1,28,28,1] tensor from the pool.
func NewTensor() *Tensor {
	buf := tensorPool.Get().(*[]float32)
	data := *buf
	clear(data)
	return &Tensor{
		Shape: append([]int64(nil), InputShape...),
		Data:  data,
	}
}

// TensorFromSlice copies already normalized values into a pooled tensor.
func TensorFromSlice(values []float32) (*Tensor, error) {
	if len(values) != ImageSize*ImageSize {
		return nil, fmt.Errorf("expected %d values, got %d", ImageSize*ImageSize, len(values))
	}
	t := NewTensor()
	copy(t.Data, values)
	return t, nil
}

// Release returns the backing array to the pool. Calling it twice is a no-op.
func (t *Tensor) Release() {
	if t == nil || t.Data == nil {
		return
	}
	data := t.Data
	t.Data = nil
	tensorPool.Put(&data)
}

// Elements is the product of the shape dimensions.
func Elements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
