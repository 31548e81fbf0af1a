package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ortClassifier runs the model through the onnxruntime shared library.
// Input and output tensors are created per call and destroyed before
// Classify returns.
type ortClassifier struct {
	session *ort.DynamicAdvancedSession
	meta    Metadata
}

func newOrtClassifier(data []byte, meta Metadata, libPath string) (*ortClassifier, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data,
		[]string{meta.InputName}, []string{meta.OutputName}, nil)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ortClassifier{
		session: session,
		meta:    meta,
	}, nil
}

func (c *ortClassifier) Classify(in *Tensor) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(c.meta.InputShape...), in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(c.meta.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = c.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor})
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := outputTensor.GetData()
	out := make([]float32, len(outputData))
	copy(out, outputData)
	return out, nil
}

func (c *ortClassifier) Close() error {
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy ONNX session: %w", err)
		}
		c.session = nil
	}
	return ort.DestroyEnvironment()
}
