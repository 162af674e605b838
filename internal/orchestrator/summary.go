package orchestrator

import (
	"time"

	"github.com/vk/taskgrid/internal/events"
	"github.com/vk/taskgrid/internal/task"
)

// Summary is the outcome of the in-query tasks of a run.
type Summary struct {
	Stage     task.Stage
	Succeeded []string
	Skipped   []string
	Failed    []string
	Duration  time.Duration
}

// Level grades the run: failed if any task failed, warning if any was
// skipped, success otherwise.
func (s *Summary) Level() events.Level {
	switch {
	case len(s.Failed) > 0:
		return events.LevelFailed
	case len(s.Skipped) > 0:
		return events.LevelWarning
	default:
		return events.LevelSuccess
	}
}

// OK reports whether every in-query task succeeded.
func (s *Summary) OK() bool {
	return s.Level() == events.LevelSuccess
}

func summarize(stage task.Stage, wrappers []*task.Wrapper, d time.Duration) *Summary {
	s := &Summary{Stage: stage, Duration: d}
	for _, w := range wrappers {
		if !w.InQuery() {
			continue
		}
		switch w.Status() {
		case task.Succeeded:
			s.Succeeded = append(s.Succeeded, w.Name())
		case task.Skipped:
			s.Skipped = append(s.Skipped, w.Name())
		case task.SetupFailed, task.Failed:
			s.Failed = append(s.Failed, w.Name())
		}
	}
	return s
}
