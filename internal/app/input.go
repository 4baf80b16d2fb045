package app

import (
	"sync"

	"gocv.io/x/gocv"
)

// EventType classifies what the user is asking for on a given iteration.
type EventType int

const (
	// EventNone means no input is pending.
	EventNone EventType = iota
	// EventLabel means a label key is held; capture and teach this frame.
	EventLabel
	// EventReload rebuilds the classifier from the stored dataset.
	EventReload
	// EventReset clears the dataset and the classifier.
	EventReset
	// EventQuit stops the loop.
	EventQuit
)

// Event is one polled input event. Class is set only for EventLabel.
type Event struct {
	Type  EventType
	Class string
}

// Input is a non-blocking source of user events. Poll must return
// immediately; while a label key is held it reports EventLabel on every
// call, which is what makes continuous capture work.
type Input interface {
	Poll() Event
}

// KeyMap binds key codes to loop events.
type KeyMap struct {
	Labels map[int]string
	Reload int
	Reset  int
	Quit   []int
}

const keyEscape = 27

// DefaultKeyMap binds the digit keys 1..9 to the given classes (in order),
// r to reload, c to reset, and q or ESC to quit.
func DefaultKeyMap(classes []string) KeyMap {
	labels := make(map[int]string)
	for i, class := range classes {
		if i >= 9 {
			break
		}
		labels[int('1')+i] = class
	}

	return KeyMap{
		Labels: labels,
		Reload: int('r'),
		Reset:  int('c'),
		Quit:   []int{int('q'), keyEscape},
	}
}

// Translate maps a raw key code to an Event. Unknown keys and -1 (no key
// pressed) map to EventNone.
func (k KeyMap) Translate(code int) Event {
	if code < 0 {
		return Event{Type: EventNone}
	}

	if class, ok := k.Labels[code]; ok {
		return Event{Type: EventLabel, Class: class}
	}

	switch code {
	case k.Reload:
		return Event{Type: EventReload}
	case k.Reset:
		return Event{Type: EventReset}
	}

	for _, q := range k.Quit {
		if code == q {
			return Event{Type: EventQuit}
		}
	}

	return Event{Type: EventNone}
}

// WindowInput polls the OpenCV window's key state. Holding a key yields a
// key code on every WaitKey call via auto-repeat, so a held label key
// produces one EventLabel per iteration.
type WindowInput struct {
	win  *gocv.Window
	keys KeyMap
}

// NewWindowInput creates a WindowInput on an existing window.
func NewWindowInput(win *gocv.Window, keys KeyMap) *WindowInput {
	return &WindowInput{win: win, keys: keys}
}

// Poll reads the currently pressed key, if any, without blocking the
// frame pipeline (1ms wait, which also pumps the window's event queue).
func (i *WindowInput) Poll() Event {
	return i.keys.Translate(i.win.WaitKey(1))
}

// ScriptedInput replays a fixed sequence of events for tests, then
// reports EventNone forever.
type ScriptedInput struct {
	mu     sync.Mutex
	events []Event
	index  int
}

// NewScriptedInput creates a ScriptedInput over the given sequence.
func NewScriptedInput(events []Event) *ScriptedInput {
	return &ScriptedInput{events: events}
}

// Poll returns the next scripted event.
func (i *ScriptedInput) Poll() Event {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.index >= len(i.events) {
		return Event{Type: EventNone}
	}

	ev := i.events[i.index]
	i.index++
	return ev
}

// Remaining returns how many scripted events have not been polled yet.
func (i *ScriptedInput) Remaining() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.events) - i.index
}

// Held returns n copies of an event, for scripting a held key.
func Held(ev Event, n int) []Event {
	events := make([]Event, n)
	for i := range events {
		events[i] = ev
	}
	return events
}
