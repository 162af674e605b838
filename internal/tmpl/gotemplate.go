package tmpl

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// GoTemplate renders text/template templates with the sprig function
// library. Missing map keys are errors.
type GoTemplate struct {
	funcs template.FuncMap
}

// NewGoTemplate returns a GoTemplate renderer.
func NewGoTemplate() *GoTemplate {
	return &GoTemplate{funcs: sprig.TxtFuncMap()}
}

// Render executes text against scope.
func (g *GoTemplate) Render(text string, scope map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	t, err := template.New("template").Funcs(g.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var sb strings.Builder
	if err := t.Execute(&sb, scope); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return sb.String(), nil
}
