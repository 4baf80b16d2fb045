package app

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/drona/internal/capture"
	"github.com/ayusman/drona/internal/classify"
	"gocv.io/x/gocv"
)

// Run drives the loop until the user quits or Stop is called. The camera
// and display are released on every exit path. A frame that cannot be
// read, stored or classified never ends the session; the iteration is
// skipped and the loop keeps going.
func (a *App) Run() error {
	if err := a.config.Camera.Open(); err != nil {
		return fmt.Errorf("open frame source: %w", err)
	}
	defer a.config.Camera.Close()
	defer a.config.Display.Close()

	a.beginSession()
	defer a.endSession()

	interval := time.Second / time.Duration(a.config.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("teaching loop started (%d fps)", a.config.FPS)

	for {
		select {
		case <-a.stopCh:
			log.Printf("teaching loop stopped")
			return nil
		case <-ticker.C:
			if a.IsPaused() {
				continue
			}
			if quit := a.iterate(); quit {
				a.Stop()
				log.Printf("teaching loop stopped")
				return nil
			}
		}
	}
}

// iterate runs one loop pass: fetch frame, poll input, teach or predict,
// render. Returns true when the user asked to quit.
func (a *App) iterate() bool {
	frame, err := a.config.Camera.ReadFrame()
	if err != nil {
		log.Printf("frame unavailable, skipping iteration: %v", err)
		return false
	}
	defer frame.Close()

	a.recordFrame()

	status := ""

	switch ev := a.config.Input.Poll(); ev.Type {
	case EventQuit:
		return true

	case EventReload:
		if err := a.Reload(); err != nil {
			log.Printf("reload failed: %v", err)
			status = "reload failed"
		} else {
			status = "reloaded"
		}

	case EventReset:
		if err := a.ResetDataset(); err != nil {
			log.Printf("reset failed: %v", err)
			status = "reset failed"
		} else {
			status = "reset"
		}

	case EventLabel:
		status = a.teach(frame, ev.Class)

	default:
		a.predict(frame)
	}

	if status == "" {
		p := a.LatestPrediction()
		status = fmt.Sprintf("%s (%.2f)", p.Label, p.Confidence)
	}

	line := fmt.Sprintf("fps %.1f; examples %d; %s",
		a.fpsEstimate(), a.config.Engine.ExampleCount(), status)
	drawStatus(frame, line)

	a.publishFrame(frame)

	if err := a.config.Display.Show(frame); err != nil {
		log.Printf("display error: %v", err)
	}

	return false
}

// teach stores the frame as a new example of the class and feeds it to the
// engine. This happens on every iteration while the label key is held, so
// a couple of seconds of holding collects dozens of examples. A failed
// disk write abandons this capture only.
func (a *App) teach(frame *gocv.Mat, class string) string {
	square := capture.CropSquare(frame)
	defer square.Close()

	index, err := a.config.Dataset.AddExample(class, square)
	if err != nil {
		log.Printf("capture for %q abandoned: %v", class, err)
		return fmt.Sprintf("capture failed: %s", class)
	}

	if err := a.config.Engine.Train(square, class); err != nil {
		// The example is on disk and will be picked up by the next
		// reload even though this incremental update failed.
		log.Printf("training on %s/%d failed: %v", class, index, err)
	}

	return fmt.Sprintf("teaching %s #%d", class, index)
}

// predict classifies the frame and updates the session's latest
// prediction. Engine failures degrade to "unknown" for this iteration.
func (a *App) predict(frame *gocv.Mat) {
	square := capture.CropSquare(frame)
	defer square.Close()

	pred, err := a.config.Engine.Predict(square)
	if err != nil {
		if !errors.Is(err, classify.ErrNoExamples) {
			log.Printf("prediction unavailable: %v", err)
		}
		pred = classify.Prediction{Label: unknownLabel}
	}

	a.setLatest(pred)

	if a.config.OnPrediction != nil {
		a.config.OnPrediction(pred)
	}
}

// publishFrame hands the annotated frame to the monitor as JPEG bytes.
func (a *App) publishFrame(frame *gocv.Mat) {
	if a.config.OnFrame == nil {
		return
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return
	}
	defer buf.Close()

	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())
	a.config.OnFrame(jpeg)
}
