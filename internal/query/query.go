// Package query resolves task selectors into an ordered list of selection
// operations and computes the set of tasks a run operates on.
//
// A selector is an optional leading "+" (upstream closure), a base selector and
// an optional trailing "+" (downstream closure). The base selector is a task
// name, "tag:<name>" or "dag:<name>".
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/taskgrid/internal/catalog"
)

var (
	ErrUnknownSelector   = errors.New("unknown selector")
	ErrMalformedSelector = errors.New("malformed selector")
)

// Error is returned when a selector token cannot be resolved. It aborts the
// whole resolution.
type Error struct {
	Kind  error
	Token string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q", e.Kind, e.Token)
}

func (e *Error) Unwrap() error { return e.Kind }

// Kind is the direction of a selection operation.
type Kind string

const (
	Include Kind = "include"
	Exclude Kind = "exclude"
)

// Operation is a single resolved selection step for one task.
type Operation struct {
	Kind       Kind
	Task       string
	Upstream   bool
	Downstream bool
}

func (o Operation) String() string {
	var sb strings.Builder
	sb.WriteString(string(o.Kind))
	sb.WriteRune(' ')
	if o.Upstream {
		sb.WriteRune('+')
	}
	sb.WriteString(o.Task)
	if o.Downstream {
		sb.WriteRune('+')
	}
	return sb.String()
}

const (
	tagPrefix = "tag:"
	dagPrefix = "dag:"
)

// selector is a parsed token.
type selector struct {
	raw        string
	prefix     string
	name       string
	upstream   bool
	downstream bool
}

func parseSelector(token string) (selector, error) {
	s := selector{raw: token}
	base := token
	if strings.HasPrefix(base, "+") {
		s.upstream = true
		base = base[1:]
	}
	if strings.HasSuffix(base, "+") {
		s.downstream = true
		base = base[:len(base)-1]
	}

	for _, p := range []string{tagPrefix, dagPrefix} {
		if strings.HasPrefix(base, p) {
			s.prefix = p
			base = base[len(p):]
			break
		}
	}

	if base == "" || strings.ContainsAny(base, "+: \t\n") {
		return s, &Error{Kind: ErrMalformedSelector, Token: token}
	}
	s.name = base
	return s, nil
}

// Resolve expands the include and exclude selector lists into operations.
// Every include token is expanded first, in list order, followed by every
// exclude token. Within a block a task is only listed the first time it is
// matched; later matches of the same task are dropped. Any token that matches
// nothing fails the whole resolution.
func Resolve(c *catalog.Catalog, include, exclude []string) ([]Operation, error) {
	var ops []Operation

	for _, block := range []struct {
		kind   Kind
		tokens []string
	}{{Include, include}, {Exclude, exclude}} {
		seen := make(map[string]struct{})
		for _, token := range block.tokens {
			expanded, err := expand(c, block.kind, token)
			if err != nil {
				return nil, err
			}
			for _, op := range expanded {
				// A repeat keeps the first operation's flags; they are not merged.
				if _, dup := seen[op.Task]; dup {
					continue
				}
				seen[op.Task] = struct{}{}
				ops = append(ops, op)
			}
		}
	}

	return ops, nil
}

func expand(c *catalog.Catalog, kind Kind, token string) ([]Operation, error) {
	s, err := parseSelector(token)
	if err != nil {
		return nil, err
	}

	op := func(name string) Operation {
		return Operation{Kind: kind, Task: name, Upstream: s.upstream, Downstream: s.downstream}
	}

	var ops []Operation
	switch s.prefix {
	case tagPrefix:
		for _, t := range c.Tasks() {
			if t.HasTag(s.name) {
				ops = append(ops, op(t.Name))
			}
		}
	case dagPrefix:
		for _, t := range c.Tasks() {
			if t.Dag == s.name {
				ops = append(ops, op(t.Name))
			}
		}
	default:
		if _, ok := c.Get(s.name); ok {
			ops = append(ops, op(s.name))
		}
	}

	if len(ops) == 0 {
		return nil, &Error{Kind: ErrUnknownSelector, Token: token}
	}
	return ops, nil
}

// Split breaks selector flag values into tokens. A single flag value may hold
// several space separated selectors.
func Split(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Fields(v)...)
	}
	return out
}
