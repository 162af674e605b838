package config

import (
	"errors"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Environment variable prefixes that override settings.yaml.
const (
	EnvParameterPrefix  = "TASKGRID_PARAMETER_"
	EnvCredentialPrefix = "TASKGRID_CREDENTIAL_"
)

// Profile maps project credential names to settings credentials and
// overrides project parameters.
type Profile struct {
	Credentials map[string]string `yaml:"credentials"`
	Parameters  map[string]any    `yaml:"parameters"`
}

// Settings is the parsed settings.yaml.
type Settings struct {
	DefaultProfile string                    `yaml:"default_profile"`
	Profiles       map[string]Profile        `yaml:"profiles"`
	Credentials    map[string]map[string]any `yaml:"credentials"`
}

// LoadSettings reads settings.yaml. A missing file yields nil settings.
func LoadSettings(fs afero.Fs, root string) (*Settings, error) {
	file := path.Join(root, SettingsFile)
	if _, err := fs.Stat(file); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	s := &Settings{}
	if err := readYAML(fs, file, s); err != nil {
		return nil, err
	}
	for _, prof := range s.Profiles {
		plainDates(prof.Parameters)
	}
	return s, nil
}

// Environment holds the overrides found in the process environment.
type Environment struct {
	Parameters  map[string]any
	Credentials map[string]map[string]any
}

// Empty reports whether the environment carries no overrides.
func (e *Environment) Empty() bool {
	return len(e.Parameters) == 0 && len(e.Credentials) == 0
}

// ParseEnvironment extracts overrides from KEY=VALUE pairs. Parameter values
// are YAML scalars or flow collections; credential values are YAML or JSON
// mappings.
func ParseEnvironment(environ []string) (*Environment, error) {
	env := &Environment{Parameters: map[string]any{}, Credentials: map[string]map[string]any{}}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, EnvParameterPrefix):
			name := strings.TrimPrefix(key, EnvParameterPrefix)
			var v any
			if err := yaml.Unmarshal([]byte(value), &v); err != nil {
				return nil, configErrorf("environment variable %s: %v", key, err)
			}
			if _, isTime := v.(time.Time); isTime {
				v = value
			}
			env.Parameters[name] = v
		case strings.HasPrefix(key, EnvCredentialPrefix):
			name := strings.TrimPrefix(key, EnvCredentialPrefix)
			var v map[string]any
			if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
				return nil, configErrorf("environment variable %s must hold a mapping", key)
			}
			env.Credentials[name] = v
		}
	}
	return env, nil
}

// Resolved is the effective parameters and credentials of a run.
type Resolved struct {
	Profile     string
	Parameters  map[string]any
	Credentials map[string]map[string]any
}

// Resolve layers project parameters, the selected profile and the
// environment, then validates the result against the project.
func Resolve(p *Project, s *Settings, env *Environment, profile string) (*Resolved, error) {
	params := map[string]any{}
	creds := map[string]map[string]any{}

	if s != nil {
		if profile != "" {
			if _, ok := s.Profiles[profile]; !ok {
				return nil, configErrorf("profile %q not defined in %s", profile, SettingsFile)
			}
		} else {
			profile = s.DefaultProfile
			if profile == "" && len(s.Profiles) == 1 {
				for name := range s.Profiles {
					profile = name
				}
			}
		}
		prof, ok := s.Profiles[profile]
		if !ok {
			return nil, configErrorf("no profile selected and no usable default_profile in %s", SettingsFile)
		}
		for k, v := range prof.Parameters {
			params[k] = v
		}
		for projectName, settingsName := range prof.Credentials {
			cred, ok := s.Credentials[settingsName]
			if !ok {
				return nil, configErrorf("profile %q references undefined credential %q", profile, settingsName)
			}
			creds[projectName] = cred
		}
	} else if env == nil || env.Empty() {
		if len(p.RequiredCredentials) > 0 {
			return nil, configErrorf("%s not found and no credentials in the environment", SettingsFile)
		}
	}

	if env != nil {
		for k, v := range env.Parameters {
			params[k] = v
		}
		for k, v := range env.Credentials {
			creds[k] = v
		}
	}

	if unknown := missingFrom(keys(params), keys(p.Parameters)); len(unknown) > 0 {
		return nil, configErrorf("some parameters are not accepted by this project: %s", strings.Join(unknown, ", "))
	}
	if unknown := missingFrom(keys(creds), p.RequiredCredentials); len(unknown) > 0 {
		return nil, configErrorf("some credentials are not accepted by this project: %s", strings.Join(unknown, ", "))
	}
	if missing := missingFrom(p.RequiredCredentials, keys(creds)); len(missing) > 0 {
		return nil, configErrorf("some credentials are missing: %s", strings.Join(missing, ", "))
	}
	var untyped []string
	for _, name := range keys(creds) {
		if _, ok := creds[name]["type"]; !ok {
			untyped = append(untyped, name)
		}
	}
	if len(untyped) > 0 {
		return nil, configErrorf("some credentials are missing a type: %s", strings.Join(untyped, ", "))
	}

	merged := make(map[string]any, len(p.Parameters))
	for k, v := range p.Parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}

	return &Resolved{Profile: profile, Parameters: merged, Credentials: creds}, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// missingFrom returns the items of list that are not in set, sorted.
func missingFrom(list, set []string) []string {
	var out []string
	for _, v := range list {
		if !contains(set, v) {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
