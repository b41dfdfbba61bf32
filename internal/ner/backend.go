package ner

import "context"

// Tag is the predicted label index and its probability for one position
type Tag struct {
	Label int
	Score float32
}

// TaggerBackend runs token classification over tokenized windows.
// Implementations may use ONNX Runtime or any other engine.
type TaggerBackend interface {
	// TagBatch returns one tag per position for every input window.
	TagBatch(ctx context.Context, inputs []*TokenizedInput) ([][]Tag, error)
	// IsReady returns whether the backend is initialized and ready.
	IsReady() bool
	// Close releases any native resources.
	Close() error
}

// NewTaggerBackend creates a backend if supported by the current build.
// Builds without the onnx tag get nil and fall back to pattern-only
// detection. Implementations live in backend_onnx.go and backend_stub.go.
