package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// fileCamera plays back a video file through the Camera interface.
// It lets the loop run against recorded footage instead of a live device.
type fileCamera struct {
	path    string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
	loop    bool
}

// NewFileCamera creates a Camera that reads frames from a video file.
// When loop is true, playback restarts from the first frame at EOF;
// otherwise ReadFrame returns ErrSourceExhausted.
func NewFileCamera(path string, loop bool) Camera {
	return &fileCamera{
		path: path,
		fps:  DefaultFPS,
		loop: loop,
	}
}

// Open opens the video file for playback.
func (c *fileCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.VideoCaptureFile(c.path)
	if err != nil {
		return fmt.Errorf("open video file %s: %w", c.path, err)
	}

	if fileFPS := capture.Get(gocv.VideoCaptureFPS); fileFPS > 0 {
		c.fps = int(fileFPS)
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the video file.
func (c *fileCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads the next frame from the file.
// The caller is responsible for closing the returned Mat.
func (c *fileCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		if !c.loop {
			mat.Close()
			return nil, ErrSourceExhausted
		}

		// Rewind and retry once.
		c.capture.Set(gocv.VideoCapturePosFrames, 0)
		if ok := c.capture.Read(&mat); !ok || mat.Empty() {
			mat.Close()
			return nil, ErrSourceExhausted
		}
	}

	return &mat, nil
}

// SetFPS sets the playback rate hint. Values <= 0 are ignored.
func (c *fileCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
}

// FPS returns the playback rate of the file.
func (c *fileCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the file is currently open.
func (c *fileCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
