// Package config loads a taskgrid project from disk: project.yaml,
// settings.yaml, environment overrides and the dag files that declare tasks.
// All file access goes through an afero.Fs.
package config
