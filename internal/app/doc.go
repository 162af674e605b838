// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle that turns a project
// directory into an orchestrated execution, decoupled from any specific
// entrypoint like a CLI.
package app
