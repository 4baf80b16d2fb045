package classify

import (
	"gocv.io/x/gocv"
)

// MockEmbedder is a test implementation of the Embedder interface.
// It allows tests to control the embedding results.
type MockEmbedder struct {
	fn  func(frame *gocv.Mat) []float32
	err error
}

// NewMockEmbedder creates a MockEmbedder that returns the given fixed
// vector for every frame.
func NewMockEmbedder(emb []float32) *MockEmbedder {
	return &MockEmbedder{fn: func(*gocv.Mat) []float32 { return emb }}
}

// SetFunc sets a function computing the embedding per frame.
func (m *MockEmbedder) SetFunc(fn func(frame *gocv.Mat) []float32) {
	m.fn = fn
}

// SetError sets the error that will be returned by Embed.
func (m *MockEmbedder) SetError(err error) {
	m.err = err
}

// Embed returns the pre-configured embedding or error.
func (m *MockEmbedder) Embed(frame *gocv.Mat) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.fn(frame), nil
}

// Close is a no-op for the mock embedder.
func (m *MockEmbedder) Close() error {
	return nil
}
