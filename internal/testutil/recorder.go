package testutil

import (
	"sync"

	"github.com/vk/taskgrid/internal/events"
)

// Recorder is an events.Sink that keeps every event for later assertions.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Report(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kind of every recorded event, in order.
func (r *Recorder) Kinds() []events.Kind {
	var out []events.Kind
	for _, e := range r.Events() {
		out = append(out, e.Kind)
	}
	return out
}

// Last returns the last event of the given kind.
func (r *Recorder) Last(kind events.Kind) (events.Event, bool) {
	evs := r.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Kind == kind {
			return evs[i], true
		}
	}
	return events.Event{}, false
}
