package config

import (
	"context"

	"github.com/spf13/afero"

	"github.com/vk/taskgrid/internal/catalog"
	"github.com/vk/taskgrid/internal/ctxlog"
)

// Loaded is everything a run needs from the project directory.
type Loaded struct {
	Root     string
	Project  *Project
	Resolved *Resolved
	Catalog  *catalog.Catalog
}

// Load reads the project at root, resolves the profile and environment
// overrides, and builds the task catalog.
func Load(ctx context.Context, fs afero.Fs, root string, environ []string, profile string) (*Loaded, error) {
	logger := ctxlog.FromContext(ctx)

	p, err := LoadProject(fs, root)
	if err != nil {
		return nil, err
	}
	s, err := LoadSettings(fs, root)
	if err != nil {
		return nil, err
	}
	env, err := ParseEnvironment(environ)
	if err != nil {
		return nil, err
	}
	resolved, err := Resolve(p, s, env, profile)
	if err != nil {
		return nil, err
	}
	c, err := LoadCatalog(ctx, fs, root, p)
	if err != nil {
		return nil, err
	}

	logger.Info("📂 Project loaded.", "root", root, "profile", resolved.Profile, "tasks", c.Len())
	return &Loaded{Root: root, Project: p, Resolved: resolved, Catalog: c}, nil
}
