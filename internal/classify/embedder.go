// Package classify provides the on-device inference engine: an embedder
// turns frames into feature vectors and an incremental k-NN classifier
// predicts labels from the embeddings it has been taught so far.
package classify

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Embedder converts a frame into a feature vector for nearest-neighbor
// classification.
type Embedder interface {
	Embed(frame *gocv.Mat) ([]float32, error)
	Close() error
}

// Histogram embedder settings.
const (
	// histBins is the number of bins per color channel.
	histBins = 16
	// histSide is the side length frames are shrunk to before binning.
	histSide = 64
)

// HistogramEmbedder is a model-free Embedder producing a normalized
// per-channel color histogram. It is the fallback when no ONNX model is
// available and keeps the demo (and the tests) runnable anywhere.
type HistogramEmbedder struct{}

// NewHistogramEmbedder creates a HistogramEmbedder.
func NewHistogramEmbedder() *HistogramEmbedder {
	return &HistogramEmbedder{}
}

// Embed returns a 3*histBins vector of normalized RGB histogram counts.
func (e *HistogramEmbedder) Embed(frame *gocv.Mat) ([]float32, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(*frame, &small, image.Point{X: histSide, Y: histSide}, 0, 0, gocv.InterpolationArea)

	img, err := small.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}

	emb := make([]float32, 3*histBins)
	bounds := img.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			emb[bin(r)]++
			emb[histBins+bin(g)]++
			emb[2*histBins+bin(b)]++
		}
	}

	total := float32(bounds.Dx() * bounds.Dy())
	for i := range emb {
		emb[i] /= total
	}

	return emb, nil
}

// Close is a no-op for the histogram embedder.
func (e *HistogramEmbedder) Close() error {
	return nil
}

// bin maps a 16-bit color channel value to a histogram bin.
func bin(v uint32) int {
	b := int(v * histBins / 65536)
	if b >= histBins {
		b = histBins - 1
	}
	return b
}
