// Package tray provides an optional system tray surface for the Drona
// teaching demo: pause/resume the loop, show the last prediction, quit.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(paused bool)
	onQuit   func()
	paused   bool
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle     *systray.MenuItem
	menuPrediction *systray.MenuItem
}

// New creates a new Tray instance, initially not paused.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback function to be called when capture is paused
// or resumed from the menu.
func (t *Tray) OnToggle(fn func(paused bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnQuit sets the callback function to be called when the quit menu item
// is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Drona")
	systray.SetTooltip("Drona Teachable Camera")

	t.menuToggle = systray.AddMenuItem("● Capturing", "Pause or resume capture")
	systray.AddSeparator()

	t.menuPrediction = systray.AddMenuItem("Prediction: none", "Latest prediction")
	t.menuPrediction.Disable()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Drona")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// Quit dismisses the tray. Used when the loop ends on its own (q key,
// signal) while the tray still owns the main thread.
func (t *Tray) Quit() {
	systray.Quit()
}

// handleToggle handles the pause/resume menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.paused = !t.paused
	paused := t.paused

	if paused {
		t.menuToggle.SetTitle("○ Paused")
	} else {
		t.menuToggle.SetTitle("● Capturing")
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(paused)
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetPrediction updates the latest prediction shown in the menu.
func (t *Tray) SetPrediction(text string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuPrediction != nil {
		if text == "" {
			t.menuPrediction.SetTitle("Prediction: none")
		} else {
			t.menuPrediction.SetTitle("Prediction: " + text)
		}
	}
}

// IsPaused returns the current paused state.
func (t *Tray) IsPaused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}
