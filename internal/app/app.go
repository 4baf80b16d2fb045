// Package app drives the capture/label/train loop at the heart of the
// Drona teaching demo: read a frame, poll input, either teach the held
// class or predict, and render the overlay.
package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/drona/internal/capture"
	"github.com/ayusman/drona/internal/classify"
	"github.com/ayusman/drona/internal/dataset"
	"github.com/ayusman/drona/internal/store"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// fpsWindow is how many recent frame timestamps feed the FPS estimate.
const fpsWindow = 40

// unknownLabel is displayed when no prediction is available.
const unknownLabel = "--"

// Config holds everything the loop needs, passed in at start-up so there
// is no package-level state to leak between runs.
type Config struct {
	Dataset *dataset.Store
	Engine  *classify.Engine
	Camera  capture.Camera
	Display Display
	Input   Input

	// Catalog is the optional session bookkeeping store.
	Catalog *store.Store

	// FPS is the loop rate; defaults to the camera's FPS setting.
	FPS int

	// OnPrediction, when set, receives every new prediction (used by the
	// HTTP monitor's WebSocket broadcast).
	OnPrediction func(classify.Prediction)

	// OnFrame, when set, receives each annotated frame as JPEG bytes
	// (used by the MJPEG stream). Frames are only encoded when set.
	OnFrame func(jpeg []byte)
}

// App owns the session state for one run of the loop.
type App struct {
	config Config

	mu         sync.RWMutex
	paused     bool
	latest     classify.Prediction
	frameTimes []time.Time
	frames     int

	stopCh   chan struct{}
	stopOnce sync.Once

	sessionID string
}

// New creates an App with the given configuration.
func New(config Config) *App {
	if config.Display == nil {
		config.Display = NopDisplay{}
	}
	if config.Input == nil {
		config.Input = NewScriptedInput(nil)
	}
	if config.FPS <= 0 {
		config.FPS = config.Camera.FPS()
	}
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}

	return &App{
		config: config,
		latest: classify.Prediction{Label: unknownLabel},
		stopCh: make(chan struct{}),
	}
}

// Stop signals the loop to exit. Safe to call from any goroutine and more
// than once (tray quit, signal handler and the q key may race).
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
}

// SetPaused pauses or resumes frame processing without releasing the
// camera. Used by the tray toggle.
func (a *App) SetPaused(paused bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = paused
}

// IsPaused reports whether frame processing is paused.
func (a *App) IsPaused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// LatestPrediction returns the most recent prediction.
func (a *App) LatestPrediction() classify.Prediction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Frames returns how many frames have been processed this session.
func (a *App) Frames() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frames
}

func (a *App) setLatest(p classify.Prediction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest = p
}

// recordFrame counts a processed frame and keeps the timestamp ring for
// the FPS estimate.
func (a *App) recordFrame() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frames++
	if len(a.frameTimes) >= fpsWindow {
		copy(a.frameTimes, a.frameTimes[1:])
		a.frameTimes = a.frameTimes[:fpsWindow-1]
	}
	a.frameTimes = append(a.frameTimes, time.Now())
}

// fpsEstimate computes the observed frame rate over the recent window.
func (a *App) fpsEstimate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.frameTimes) < 2 {
		return 0
	}

	span := a.frameTimes[len(a.frameTimes)-1].Sub(a.frameTimes[0]).Seconds() + 0.001
	return float64(len(a.frameTimes)) / span
}

// Reload rescans the dataset tree, rebuilds the in-memory counters and
// re-teaches the classifier from scratch over every stored example. It is
// synchronous and blocks the loop for its duration; reload is
// user-triggered and infrequent, and cost grows with the stored example
// count. Unreadable files are skipped, not fatal.
func (a *App) Reload() error {
	start := time.Now()

	scanned, err := a.config.Dataset.Scan()
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	a.config.Engine.Clear()

	taught, skipped := 0, 0
	for class, paths := range scanned {
		for _, path := range paths {
			mat := gocv.IMRead(path, gocv.IMReadColor)
			if mat.Empty() {
				mat.Close()
				skipped++
				log.Printf("reload: skipping unreadable example %s", path)
				continue
			}

			if err := a.config.Engine.Train(&mat, class); err != nil {
				skipped++
				log.Printf("reload: skipping %s: %v", path, err)
			} else {
				taught++
			}
			mat.Close()
		}
	}

	log.Printf("reload: taught %d examples across %d classes (%d skipped) in %s",
		taught, len(scanned), skipped, time.Since(start).Round(time.Millisecond))
	return nil
}

// ResetDataset wipes the stored dataset and forgets everything taught.
func (a *App) ResetDataset() error {
	if err := a.config.Dataset.Reset(); err != nil {
		return err
	}
	a.config.Engine.Clear()
	log.Printf("dataset reset")
	return nil
}

// beginSession records the session start in the catalog, when configured.
func (a *App) beginSession() {
	if a.config.Catalog == nil {
		return
	}

	a.sessionID = uuid.NewString()
	err := a.config.Catalog.Sessions().Create(&store.Session{
		ID:        a.sessionID,
		StartedAt: time.Now(),
	})
	if err != nil {
		log.Printf("catalog: failed to record session start: %v", err)
		a.sessionID = ""
	}
}

// endSession records the session end and per-class counts in the catalog.
func (a *App) endSession() {
	if a.config.Catalog == nil || a.sessionID == "" {
		return
	}

	err := a.config.Catalog.Sessions().Finish(a.sessionID, a.Frames(), a.config.Dataset.Counts())
	if err != nil {
		log.Printf("catalog: failed to record session end: %v", err)
	}
}
