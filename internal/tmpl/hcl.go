package tmpl

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// HCL renders HCL string templates: "${name}" interpolations and
// "%{ if ... }" directives.
type HCL struct {
	funcs map[string]function.Function
}

// NewHCL returns an HCL renderer with a small set of string and date
// functions available to templates.
func NewHCL() *HCL {
	return &HCL{funcs: map[string]function.Function{
		"upper":      stdlib.UpperFunc,
		"lower":      stdlib.LowerFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"replace":    stdlib.ReplaceFunc,
		"join":       stdlib.JoinFunc,
		"split":      stdlib.SplitFunc,
		"format":     stdlib.FormatFunc,
		"formatdate": stdlib.FormatDateFunc,
		"timeadd":    stdlib.TimeAddFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
	}}
}

// Render evaluates text as an HCL template. Text without template sequences
// is returned unchanged.
func (h *HCL) Render(text string, scope map[string]any) (string, error) {
	if !strings.Contains(text, "${") && !strings.Contains(text, "%{") {
		return text, nil
	}

	expr, diags := hclsyntax.ParseTemplate([]byte(text), "template", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to parse template: %w", diags)
	}

	vars, err := scopeVariables(scope)
	if err != nil {
		return "", err
	}

	val, diags := expr.Value(&hcl.EvalContext{Variables: vars, Functions: h.funcs})
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to render template: %w", diags)
	}
	if val.IsNull() || !val.IsKnown() {
		return "", fmt.Errorf("template %q evaluated to an empty value", text)
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("template %q did not evaluate to a string: %w", text, err)
	}
	return str.AsString(), nil
}

func scopeVariables(scope map[string]any) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value, len(scope))
	for k, v := range scope {
		cv, err := ToCtyValue(v)
		if err != nil {
			return nil, fmt.Errorf("scope variable %q: %w", k, err)
		}
		vars[k] = cv
	}
	return vars, nil
}
