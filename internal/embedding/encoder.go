// Package embedding provides the local vector-embedding similarity backend.
package embedding

import "context"

// Encoder turns a text into a dense vector. The ONNX implementation is
// resource-heavy, so callers share one instance per process.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Close() error
}
