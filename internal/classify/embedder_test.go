package classify

import (
	"testing"

	"gocv.io/x/gocv"
)

// solidFrame returns a frame filled with one BGR color.
func solidFrame(t *testing.T, b, g, r float64) *gocv.Mat {
	t.Helper()

	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), 120, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return &m
}

func TestHistogramEmbedder_Dimensions(t *testing.T) {
	embedder := NewHistogramEmbedder()
	defer embedder.Close()

	emb, err := embedder.Embed(solidFrame(t, 0, 0, 255))
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}

	if len(emb) != 3*histBins {
		t.Errorf("embedding length = %d, want %d", len(emb), 3*histBins)
	}

	// Each channel's bins sum to 1.
	for ch := 0; ch < 3; ch++ {
		var sum float32
		for i := 0; i < histBins; i++ {
			sum += emb[ch*histBins+i]
		}
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("channel %d bins sum to %f, want 1", ch, sum)
		}
	}
}

func TestHistogramEmbedder_SeparatesColors(t *testing.T) {
	embedder := NewHistogramEmbedder()
	defer embedder.Close()

	red, err := embedder.Embed(solidFrame(t, 0, 0, 255))
	if err != nil {
		t.Fatalf("Embed(red) failed: %v", err)
	}
	blue, err := embedder.Embed(solidFrame(t, 255, 0, 0))
	if err != nil {
		t.Fatalf("Embed(blue) failed: %v", err)
	}
	red2, err := embedder.Embed(solidFrame(t, 0, 0, 250))
	if err != nil {
		t.Fatalf("Embed(red2) failed: %v", err)
	}

	if d := squaredDistance(red, blue); d == 0 {
		t.Error("red and blue frames produced identical embeddings")
	}
	if squaredDistance(red, red2) >= squaredDistance(red, blue) {
		t.Error("similar reds should embed closer together than red and blue")
	}
}

func TestHistogramEmbedder_EmptyFrame(t *testing.T) {
	embedder := NewHistogramEmbedder()
	defer embedder.Close()

	empty := gocv.NewMat()
	defer empty.Close()

	if _, err := embedder.Embed(&empty); err == nil {
		t.Error("Embed() on an empty frame should fail")
	}
	if _, err := embedder.Embed(nil); err == nil {
		t.Error("Embed() on a nil frame should fail")
	}
}

func TestEngineWithHistogramEmbedder(t *testing.T) {
	engine := NewEngine(NewHistogramEmbedder(), DefaultK)
	defer engine.Close()

	// Teach colors the way a user would hold down class keys.
	for i := 0; i < 5; i++ {
		if err := engine.Train(solidFrame(t, 0, 0, 255), "red"); err != nil {
			t.Fatalf("Train(red) failed: %v", err)
		}
		if err := engine.Train(solidFrame(t, 255, 0, 0), "blue"); err != nil {
			t.Fatalf("Train(blue) failed: %v", err)
		}
	}

	pred, err := engine.Predict(solidFrame(t, 10, 10, 240))
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}
	if pred.Label != "red" {
		t.Errorf("Label = %q, want %q", pred.Label, "red")
	}
}
