package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultMetadata describes the ONNX model zoo MNIST classifier. Its
// single-channel NCHW input has the same memory order as the
// preprocessor's NHWC output, so only the declared shape differs.
func DefaultMetadata() Metadata {
	return Metadata{
		InputName:   "Input3",
		OutputName:  "Plus214_Output_0",
		InputShape:  []int64{1, 1, ImageSize, ImageSize},
		OutputShape: []int64{1, 10},
		Classes:     []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
		ImageSize:   ImageSize,
		Softmax:     true,
	}
}

// LoadMetadata reads a metadata file. Fields missing from the file keep
// their DefaultMetadata values.
func LoadMetadata(path string) (Metadata, error) {
	metadata := DefaultMetadata()
	if path == "" {
		return metadata, nil
	}

	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// Validate checks that the metadata fits the preprocessor and a ten-class output.
func (m Metadata) Validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("metadata: input and output names are required")
	}
	if m.ImageSize != ImageSize {
		return fmt.Errorf("metadata: image size must be %d, got %d", ImageSize, m.ImageSize)
	}
	if got := Elements(m.InputShape); got != ImageSize*ImageSize {
		return fmt.Errorf("metadata: input shape %v holds %d values, want %d", m.InputShape, got, ImageSize*ImageSize)
	}
	if len(m.Classes) != 10 {
		return fmt.Errorf("metadata: expected 10 classes, got %d", len(m.Classes))
	}
	if got := Elements(m.OutputShape); got != len(m.Classes) {
		return fmt.Errorf("metadata: output shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	return nil
}
