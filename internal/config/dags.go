package config

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/ctxlog"
)

// DagFile is one parsed dag file. Tasks keep their declaration order.
type DagFile struct {
	Name    string
	Presets map[string]map[string]any
	Tasks   []RawTask
}

// RawTask is a task mapping as written in a dag file.
type RawTask struct {
	Name string
	Def  map[string]any
}

// FindDags returns the dag files below the dags folder, sorted by path.
func FindDags(fs afero.Fs, root string, p *Project) ([]string, error) {
	// BasePathFs rejects names that escape a relative base, so anchor it.
	base, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("find dag files: %w", err)
	}
	fsys := afero.NewIOFS(afero.NewBasePathFs(fs, base))
	pattern := path.Join(p.Folders.Dags, "**", "*.{yaml,yml}")
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("find dag files: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// ParseDag parses a dag file. The dag is named after the file, without
// directory or extension.
func ParseDag(name string, raw []byte) (*DagFile, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, configErrorf("dag %q: %v", name, err)
	}
	df := &DagFile{Name: name}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return df, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, configErrorf("dag %q: top level must be a mapping", name)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		switch key {
		case "tasks":
			tasks, err := orderedMapping(value)
			if err != nil {
				return nil, configErrorf("dag %q: tasks: %v", name, err)
			}
			df.Tasks = tasks
		case "presets":
			if err := value.Decode(&df.Presets); err != nil {
				return nil, configErrorf("dag %q: presets: %v", name, err)
			}
			for _, preset := range df.Presets {
				plainDates(preset)
			}
		default:
			return nil, configErrorf("dag %q: unexpected key %q", name, key)
		}
	}
	return df, nil
}

func orderedMapping(n *yaml.Node) ([]RawTask, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("must be a mapping of task name to definition")
	}
	out := make([]RawTask, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		var def map[string]any
		if err := n.Content[i+1].Decode(&def); err != nil {
			return nil, fmt.Errorf("task %q: %v", name, err)
		}
		if def == nil {
			def = map[string]any{}
		}
		plainDates(def)
		out = append(out, RawTask{Name: name, Def: def})
	}
	return out, nil
}

// LoadCatalog discovers, parses and merges every dag file into a catalog.
func LoadCatalog(ctx context.Context, fs afero.Fs, root string, p *Project) (*catalog.Catalog, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := FindDags(fs, root, p)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, configErrorf("no dag files found in %s", path.Join(root, p.Folders.Dags))
	}

	c := catalog.New()
	dagNames := map[string]string{}
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), path.Ext(file))
		if prev, dup := dagNames[name]; dup {
			return nil, configErrorf("dag %q is defined by both %s and %s", name, prev, file)
		}
		dagNames[name] = file

		raw, err := afero.ReadFile(fs, path.Join(root, file))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		df, err := ParseDag(name, raw)
		if err != nil {
			return nil, err
		}
		for _, rt := range df.Tasks {
			td, err := BuildTask(rt, df, p)
			if err != nil {
				return nil, err
			}
			if err := c.Add(td); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
		}
		logger.Debug("Dag loaded.", "dag", name, "file", file, "tasks", len(df.Tasks))
	}
	return c, nil
}

// BuildTask applies presets to a raw task and splits it into identity and
// runner properties. A task preset is looked up among the dag's presets
// first, then the project's. A dag preset may itself name a project preset.
// Keys set on the task win over its preset.
func BuildTask(rt RawTask, df *DagFile, p *Project) (*catalog.TaskDefinition, error) {
	def := rt.Def
	if name, ok := def["preset"]; ok {
		presetName, ok := name.(string)
		if !ok {
			return nil, configErrorf("task %q: preset must be a string", rt.Name)
		}
		preset, err := resolvePreset(presetName, df, p)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", rt.Name, err)
		}
		if err := mergo.Merge(&preset, def, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("task %q: apply preset: %w", rt.Name, err)
		}
		preset["preset"] = presetName
		def = preset
	}

	td := &catalog.TaskDefinition{Name: rt.Name, Dag: df.Name}
	var err error
	if td.Type, err = optString(def, "type"); err != nil {
		return nil, configErrorf("task %q: %v", rt.Name, err)
	}
	if td.Class, err = optString(def, "class"); err != nil {
		return nil, configErrorf("task %q: %v", rt.Name, err)
	}
	if td.Preset, err = optString(def, "preset"); err != nil {
		return nil, configErrorf("task %q: %v", rt.Name, err)
	}
	if td.Tags, err = optStrings(def, "tags"); err != nil {
		return nil, configErrorf("task %q: %v", rt.Name, err)
	}
	if td.Parents, err = optStrings(def, "parents"); err != nil {
		return nil, configErrorf("task %q: %v", rt.Name, err)
	}
	if v, ok := def["parameters"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, configErrorf("task %q: parameters must be a mapping", rt.Name)
		}
		td.Parameters = m
	}
	if td.Type == "" {
		return nil, configErrorf("task %q: missing type", rt.Name)
	}

	td.Properties = map[string]any{}
	for k, v := range def {
		if !contains(catalog.IdentityProperties, k) {
			td.Properties[k] = v
		}
	}
	return td, nil
}

func resolvePreset(name string, df *DagFile, p *Project) (map[string]any, error) {
	if preset, ok := df.Presets[name]; ok {
		out := copyMap(preset)
		parent, ok := out["preset"]
		if !ok {
			return out, nil
		}
		delete(out, "preset")
		parentName, _ := parent.(string)
		base, ok := p.Presets[parentName]
		if !ok {
			return nil, configErrorf("dag preset %q references undefined project preset %q", name, parentName)
		}
		merged := copyMap(base)
		if err := mergo.Merge(&merged, out, mergo.WithOverride); err != nil {
			return nil, err
		}
		return merged, nil
	}
	if preset, ok := p.Presets[name]; ok {
		return copyMap(preset), nil
	}
	return nil, configErrorf("undefined preset %q", name)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = copyMap(nested)
		}
		out[k] = v
	}
	return out
}

func optString(def map[string]any, key string) (string, error) {
	v, ok := def[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

func optStrings(def map[string]any, key string) ([]string, error) {
	v, ok := def[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a list of strings", key)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings", key)
	}
}
