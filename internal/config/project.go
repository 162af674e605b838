package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks every invalid configuration.
var ErrConfig = errors.New("invalid configuration")

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// File names inside a project directory.
const (
	ProjectFile  = "project.yaml"
	SettingsFile = "settings.yaml"
)

// Folders are the project's working directories, relative to its root.
type Folders struct {
	SQL     string `yaml:"sql"`
	Compile string `yaml:"compile"`
	Dags    string `yaml:"dags"`
}

// Project is the parsed project.yaml.
type Project struct {
	Parameters          map[string]any            `yaml:"parameters"`
	RequiredCredentials []string                  `yaml:"required_credentials"`
	DefaultDB           string                    `yaml:"default_db"`
	Presets             map[string]map[string]any `yaml:"presets"`
	TemplateEngine      string                    `yaml:"template_engine"`
	Folders             Folders                   `yaml:"folders"`
}

func (p *Project) applyDefaults() {
	if p.Parameters == nil {
		p.Parameters = map[string]any{}
	}
	plainDates(p.Parameters)
	for _, preset := range p.Presets {
		plainDates(preset)
	}
	if p.Folders.SQL == "" {
		p.Folders.SQL = "sql"
	}
	if p.Folders.Compile == "" {
		p.Folders.Compile = "compile"
	}
	if p.Folders.Dags == "" {
		p.Folders.Dags = "dags"
	}
}

func (p *Project) validate() error {
	if p.DefaultDB != "" && !contains(p.RequiredCredentials, p.DefaultDB) {
		return configErrorf("default_db %q is not in required_credentials", p.DefaultDB)
	}
	for name, preset := range p.Presets {
		if _, ok := preset["preset"]; ok {
			return configErrorf("project preset %q cannot reference another preset", name)
		}
	}
	return nil
}

// LoadProject reads project.yaml from the project root.
func LoadProject(fs afero.Fs, root string) (*Project, error) {
	p := &Project{}
	if err := readYAML(fs, path.Join(root, ProjectFile), p); err != nil {
		return nil, err
	}
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func readYAML(fs afero.Fs, file string, out any) error {
	raw, err := afero.ReadFile(fs, file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s not found", ErrConfig, file)
		}
		return fmt.Errorf("read %s: %w", file, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfig, file, err)
	}
	return nil
}

// plainDates replaces the timestamps YAML decodes from unquoted dates with
// their text, so "2024-01-01" stays a date string in templates.
func plainDates(tree any) any {
	switch v := tree.(type) {
	case time.Time:
		if v.Equal(v.Truncate(24*time.Hour)) && v.Location() == time.UTC {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	case map[string]any:
		for k, item := range v {
			v[k] = plainDates(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = plainDates(item)
		}
		return v
	default:
		return v
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
