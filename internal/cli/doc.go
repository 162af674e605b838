// Package cli turns taskgrid's command line into an app.Config. It owns the
// cobra command tree, the run window defaults and the mapping of run outcomes
// to process exit codes.
package cli
