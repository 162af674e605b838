package task

import (
	"fmt"
	"sort"
	"strings"
)

// Error kinds produced by the lifecycle itself. Runners may use their own.
const (
	KindConfig      = "config"
	KindSetup       = "task_setup"
	KindException   = "exception"
	KindResult      = "task_result"
	KindCancelled   = "cancelled"
	KindClassLoader = "class_loader"
	KindDefinition  = "task_definition"
)

// CodeMissingResult marks a runner that returned a malformed Result.
const CodeMissingResult = "missing_result_error"

// Error is the structured failure carried by a Result.
type Error struct {
	Kind    string
	Code    string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind)
	if e.Code != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Code)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, e.Details[k])
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the tagged outcome of a runner operation. The zero Result is
// malformed: runners must return Ok() or one of the failure constructors.
type Result struct {
	ok  bool
	err *Error
}

// Ok is a successful Result.
func Ok() Result { return Result{ok: true} }

// Err wraps a structured failure. Err(nil) is malformed.
func Err(e *Error) Result { return Result{err: e} }

// Fail builds a failure Result.
func Fail(kind, code string, details map[string]any) Result {
	return Err(&Error{Kind: kind, Code: code, Details: details})
}

// FromError converts a Go error into a failure Result of the given kind.
// A nil error is success.
func FromError(kind, code string, err error) Result {
	if err == nil {
		return Ok()
	}
	return Err(&Error{Kind: kind, Code: code, Err: err})
}

// IsOk reports success.
func (r Result) IsOk() bool { return r.ok && r.err == nil }

// Error returns the failure, or nil on success.
func (r Result) Error() *Error { return r.err }

// Valid reports whether the Result is well formed: exactly one of success or
// a failure carrying an error.
func (r Result) Valid() bool { return r.ok != (r.err != nil) }

func malformed() Result {
	return Fail(KindResult, CodeMissingResult, nil)
}
