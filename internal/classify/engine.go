package classify

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// Engine defaults.
const (
	// DefaultK is the number of neighbors consulted per prediction.
	DefaultK = 3
	// smoothingWindow is how many recent winners are kept to steady the
	// displayed label between frames.
	smoothingWindow = 4
)

// ErrNoExamples is returned by Predict before any example has been taught.
var ErrNoExamples = errors.New("no examples taught yet")

// Prediction is the engine's answer for one frame.
type Prediction struct {
	Label      string
	Confidence float32
}

// example is one taught embedding with its label.
type example struct {
	emb   []float32
	label string
}

// Engine is an incremental k-nearest-neighbor classifier over embeddings.
// Training appends; there is no model state beyond the taught examples, so
// a reload simply clears the engine and re-teaches every stored image.
type Engine struct {
	embedder Embedder
	k        int

	mu       sync.Mutex
	examples []example
	recent   []string
}

// NewEngine creates an Engine using the given embedder and neighbor count.
// k values <= 0 fall back to DefaultK.
func NewEngine(embedder Embedder, k int) *Engine {
	if k <= 0 {
		k = DefaultK
	}
	return &Engine{
		embedder: embedder,
		k:        k,
	}
}

// Train embeds the frame and teaches it as an example of the class.
func (e *Engine) Train(frame *gocv.Mat, class string) error {
	emb, err := e.embedder.Embed(frame)
	if err != nil {
		return fmt.Errorf("train %q: %w", class, err)
	}

	e.TrainEmbedding(emb, class)
	return nil
}

// TrainEmbedding teaches a pre-computed embedding. Used by Train and by
// tests that want deterministic vectors.
func (e *Engine) TrainEmbedding(emb []float32, class string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.examples = append(e.examples, example{emb: emb, label: class})
}

// Predict embeds the frame and classifies it against the taught examples.
func (e *Engine) Predict(frame *gocv.Mat) (Prediction, error) {
	emb, err := e.embedder.Embed(frame)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}

	return e.PredictEmbedding(emb)
}

// PredictEmbedding classifies a pre-computed embedding: majority vote over
// the k nearest examples by L2 distance, then smoothed over the last few
// winners so the overlay does not flicker between neighboring classes.
func (e *Engine) PredictEmbedding(emb []float32) (Prediction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.examples) == 0 {
		return Prediction{}, ErrNoExamples
	}

	type neighbor struct {
		dist  float64
		label string
	}

	neighbors := make([]neighbor, len(e.examples))
	for i, ex := range e.examples {
		neighbors[i] = neighbor{dist: squaredDistance(emb, ex.emb), label: ex.label}
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].dist < neighbors[j].dist
	})

	k := e.k
	if k > len(neighbors) {
		k = len(neighbors)
	}

	votes := make(map[string]int)
	for _, n := range neighbors[:k] {
		votes[n.label]++
	}

	winner := ""
	for label, count := range votes {
		if winner == "" || count > votes[winner] {
			winner = label
		}
	}
	confidence := float32(votes[winner]) / float32(k)

	// Smooth the reported label over the recent winners.
	if len(e.recent) >= smoothingWindow {
		e.recent = e.recent[1:]
	}
	e.recent = append(e.recent, winner)

	smoothed, share := mode(e.recent)
	if smoothed != winner {
		confidence = share
	}

	return Prediction{Label: smoothed, Confidence: confidence}, nil
}

// ExampleCount returns the number of taught examples.
func (e *Engine) ExampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.examples)
}

// Classes returns the distinct taught labels in sorted order.
func (e *Engine) Classes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	var classes []string
	for _, ex := range e.examples {
		if !seen[ex.label] {
			seen[ex.label] = true
			classes = append(classes, ex.label)
		}
	}
	sort.Strings(classes)
	return classes
}

// Clear forgets every taught example and the smoothing history.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.examples = nil
	e.recent = nil
}

// Close releases the embedder.
func (e *Engine) Close() error {
	return e.embedder.Close()
}

// squaredDistance is the squared L2 distance between two vectors.
// Vectors of different lengths are compared over the shorter prefix.
func squaredDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var total float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		total += d * d
	}

	if math.IsNaN(total) {
		return math.MaxFloat64
	}
	return total
}

// mode returns the most frequent label and its share of the slice.
func mode(labels []string) (string, float32) {
	counts := make(map[string]int)
	best := ""
	for _, l := range labels {
		counts[l]++
		if best == "" || counts[l] > counts[best] {
			best = l
		}
	}
	return best, float32(counts[best]) / float32(len(labels))
}
