// Package orchestrator sequences the lifecycle stages of every task of a run.
//
// A Run is constructed once per invocation from the catalog, the graph and
// the selection. Setup visits every task in topological order; then a single
// execution stage (compile or run) visits every in-query task in the same
// order. One stage always completes across the whole graph before the next
// begins. Everything happens on the caller's goroutine.
package orchestrator
