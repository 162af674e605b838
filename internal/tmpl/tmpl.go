// Package tmpl renders string templates against a variable scope and walks
// nested configuration trees, rendering every string leaf.
//
// Two engines are available: HCL string templates ("${start_dt}") and Go
// text/template with the sprig function library ("{{ .start_dt }}"). Both are
// strict: referencing an undefined variable is an error, never a blank.
package tmpl

import (
	"fmt"
	"sort"
	"strings"
)

// Renderer renders a single template string using the given scope.
type Renderer interface {
	Render(text string, scope map[string]any) (string, error)
}

// Engine names accepted by New.
const (
	EngineHCL        = "hcl"
	EngineGoTemplate = "gotemplate"
)

// New returns the renderer for the named engine. An empty name selects HCL.
func New(engine string) (Renderer, error) {
	switch strings.ToLower(engine) {
	case "", EngineHCL:
		return NewHCL(), nil
	case EngineGoTemplate:
		return NewGoTemplate(), nil
	default:
		return nil, fmt.Errorf("unknown template engine %q", engine)
	}
}

// Visitor transforms a single string leaf.
type Visitor func(s string) (string, error)

// Walk returns a copy of tree in which every string leaf has been replaced by
// the visitor's result. Mappings and sequences are traversed recursively;
// mapping keys and non-string leaves are left untouched. The input is never
// modified. The first visitor error aborts the walk.
func Walk(tree any, visit Visitor) (any, error) {
	switch v := tree.(type) {
	case string:
		return visit(v)
	case map[string]any:
		return WalkMap(v, visit)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			w, err := Walk(item, visit)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = w
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			w, err := visit(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = w
		}
		return out, nil
	default:
		return v, nil
	}
}

// WalkMap is Walk for a mapping root.
func WalkMap(tree map[string]any, visit Visitor) (map[string]any, error) {
	if tree == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(tree))
	for _, k := range keys {
		w, err := Walk(tree[k], visit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = w
	}
	return out, nil
}

// RenderTree renders every string leaf of tree with r and scope.
func RenderTree(r Renderer, tree map[string]any, scope map[string]any) (map[string]any, error) {
	return WalkMap(tree, func(s string) (string, error) {
		return r.Render(s, scope)
	})
}
