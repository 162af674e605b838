package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Console prints a human readable progress report.
type Console struct {
	w      io.Writer
	debug  bool
	bold   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	faint  *color.Color
}

// NewConsole returns a console sink writing to w. With debug set, per-task
// stage starts are printed too.
func NewConsole(w io.Writer, noColor, debug bool) *Console {
	c := &Console{
		w:      w,
		debug:  debug,
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		faint:  color.New(color.Faint),
	}
	if noColor {
		for _, col := range []*color.Color{c.bold, c.green, c.yellow, c.red, c.faint} {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) Report(e Event) {
	switch e.Kind {
	case StartApp:
		c.bold.Fprintf(c.w, "Starting taskgrid (run %s)\n", e.RunID)
	case StartStage:
		c.bold.Fprintf(c.w, "%s\n", strings.ToUpper(e.Stage))
	case FinishStage:
		c.faint.Fprintf(c.w, "%s done in %s\n", e.Stage, e.Duration.Round(1e6))
	case StartTaskStage:
		if c.debug {
			c.faint.Fprintf(c.w, "  %s: %s...\n", e.Task, e.Stage)
		}
	case FinishTaskStage:
		c.colorFor(e.Level).Fprintf(c.w, "  %s %s: %s%s\n", mark(e.Level), e.Task, strings.ToLower(e.Status), errSuffix(e.Err))
	case ExecutionFinished:
		c.colorFor(e.Level).Fprintf(c.w, "Execution %s in %s\n", e.Level, e.Duration.Round(1e6))
		for _, outcome := range []string{"succeeded", "skipped", "failed"} {
			if names, ok := e.Details[outcome].([]string); ok && len(names) > 0 {
				fmt.Fprintf(c.w, "  %s (%d): %s\n", outcome, len(names), strings.Join(names, ", "))
			}
		}
	}
}

func (c *Console) colorFor(l Level) *color.Color {
	switch l {
	case LevelSuccess:
		return c.green
	case LevelWarning:
		return c.yellow
	case LevelError, LevelFailed:
		return c.red
	default:
		return c.faint
	}
}

func mark(l Level) string {
	switch l {
	case LevelSuccess:
		return "✔"
	case LevelWarning:
		return "-"
	case LevelError, LevelFailed:
		return "✘"
	default:
		return "·"
	}
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return " (" + err.Error() + ")"
}
