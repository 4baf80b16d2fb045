package app

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Display renders the annotated frame somewhere the user can see it.
type Display interface {
	Show(frame *gocv.Mat) error
	Close() error
}

// WindowDisplay shows frames in an OpenCV window. The window is shared
// with WindowInput, which polls its key state.
type WindowDisplay struct {
	win *gocv.Window
}

// NewWindowDisplay creates a WindowDisplay on an existing window.
func NewWindowDisplay(win *gocv.Window) *WindowDisplay {
	return &WindowDisplay{win: win}
}

// Show renders the frame.
func (d *WindowDisplay) Show(frame *gocv.Mat) error {
	d.win.IMShow(*frame)
	return nil
}

// Close closes the window.
func (d *WindowDisplay) Close() error {
	return d.win.Close()
}

// NopDisplay discards frames; used headless and in tests.
type NopDisplay struct{}

func (NopDisplay) Show(frame *gocv.Mat) error { return nil }
func (NopDisplay) Close() error               { return nil }

// drawStatus overlays the status line onto the frame, drawn twice with a
// one-pixel offset so the text stays readable on any background.
func drawStatus(frame *gocv.Mat, status string) {
	gocv.PutText(frame, status, image.Point{X: 11, Y: 41},
		gocv.FontHersheySimplex, 0.6, color.RGBA{A: 255}, 2)
	gocv.PutText(frame, status, image.Point{X: 10, Y: 40},
		gocv.FontHersheySimplex, 0.6, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 1)
}
