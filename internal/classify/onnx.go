package classify

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// ModelMetadata describes the embedding model next to the .onnx file.
type ModelMetadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

// ONNXEmbedder runs a headless feature-extraction model (e.g. a MobileNet
// without its classification head) through onnxruntime. Input and output
// tensors are allocated once and reused across frames.
type ONNXEmbedder struct {
	session      *ort.AdvancedSession
	metadata     ModelMetadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXEmbedder loads the model and its metadata JSON and prepares an
// inference session.
func NewONNXEmbedder(modelPath, metadataPath string) (*ONNXEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata ModelMetadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Embed runs the frame through the model and returns a copy of the
// embedding vector.
func (e *ONNXEmbedder) Embed(frame *gocv.Mat) ([]float32, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}

	inputData := preprocess(img, uint(e.metadata.ImageSize))

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), inputData)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := e.outputTensor.GetData()
	emb := make([]float32, len(outputData))
	copy(emb, outputData)

	return emb, nil
}

// preprocess resizes the image to the model's square input and lays pixels
// out as normalized CHW float32.
func preprocess(img image.Image, targetSize uint) []float32 {
	resized := resize.Resize(targetSize, targetSize, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y

	inputData := make([]float32, 3*width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()

			pixelIndex := y*width + x
			inputData[pixelIndex] = float32(r) / 65535.0
			inputData[width*height+pixelIndex] = float32(g) / 65535.0
			inputData[2*width*height+pixelIndex] = float32(b) / 65535.0
		}
	}

	return inputData
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	ort.DestroyEnvironment()
	return nil
}
