// Package database builds the run-wide connection pool from resolved
// credentials. The pool is constructed once at startup and then shared
// read-only by every task: it only exposes getters.
package database
