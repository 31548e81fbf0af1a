package model

import (
	"errors"
	"fmt"
)

// Classifier is a loaded model. Classify runs one forward pass and returns
// the raw output values; it must not retain the input tensor.
type Classifier interface {
	Classify(in *Tensor) ([]float32, error)
	Close() error
}

const (
	BackendBorn        = "born"
	BackendOnnxRuntime = "onnxruntime"
)

var ErrEmptyArtifact = errors.New("empty model artifact")

// OpenOptions selects and configures the inference backend.
type OpenOptions struct {
	Backend        string
	Metadata       Metadata
	OnnxRuntimeLib string
}

// Opener turns artifact bytes into a Classifier.
type Opener func(data []byte, opts OpenOptions) (Classifier, error)

// Open deserializes an ONNX artifact with the requested backend.
func Open(data []byte, opts OpenOptions) (Classifier, error) {
	if len(data) == 0 {
		return nil, ErrEmptyArtifact
	}
	if err := opts.Metadata.Validate(); err != nil {
		return nil, err
	}

	switch opts.Backend {
	case BackendOnnxRuntime, "":
		return newOrtClassifier(data, opts.Metadata, opts.OnnxRuntimeLib)
	case BackendBorn:
		return newBornClassifier(data, opts.Metadata)
	default:
		return nil, fmt.Errorf("unknown model backend %q", opts.Backend)
	}
}
