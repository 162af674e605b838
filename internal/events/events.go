// Package events defines the structured events the orchestrator emits and
// the sinks that present them. The core never formats output itself.
package events

import (
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	StartApp          Kind = "start_app"
	StartStage        Kind = "start_stage"
	FinishStage       Kind = "finish_stage"
	StartTaskStage    Kind = "start_task_stage"
	FinishTaskStage   Kind = "finish_task_stage"
	ExecutionFinished Kind = "execution_finished"
)

// Context says whether an event concerns the whole app or one task.
type Context string

const (
	ContextApp  Context = "app"
	ContextTask Context = "task"
)

// Level grades an event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFailed  Level = "failed"
)

// Event is one structured occurrence of a run.
type Event struct {
	RunID    string
	Time     time.Time
	Kind     Kind
	Context  Context
	Stage    string
	Level    Level
	Task     string
	Status   string
	Duration time.Duration
	Err      error
	Details  map[string]any
}

// Sink receives events.
type Sink interface {
	Report(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

func (f SinkFunc) Report(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to several sinks. Report calls are serialized, so
// the wrapped sinks never see concurrent calls.
type Multi struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewMulti returns a fan-out sink. Nil sinks are ignored.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) Report(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sinks {
		s.Report(e)
	}
}
