// Package registry provides the central "glue" for the module system.
//
// The Registry maps the type discriminator of a task definition ("sql",
// "autosql", ...) to the constructor of its runner. Built-in modules register
// themselves at startup. The reserved "external" discriminator is resolved
// through a ClassResolver, which looks up application supplied runners by
// "<module>.<Class>".
package registry
