// Package task implements the per-task lifecycle: the runner contract, the
// status state machine and the run-scoped table that owns every wrapper.
//
// A Wrapper moves through
//
//	UNKNOWN -> SETTING_UP -> {NOT_IN_QUERY | SKIPPED | SETUP_FAILED | READY}
//	READY   -> {SUCCEEDED | FAILED | SKIPPED}
//
// Failures never cross task boundaries directly. A child learns about a
// failed parent only through CanRun.
package task
