// Package dag builds the task dependency graph of a run. It takes the ordered
// task → parents mapping from the catalog, validates it (unknown parents,
// duplicates, cycles) and produces an immutable Graph exposing a deterministic
// topological order and transitive upstream/downstream closures.
//
// Determinism: whenever several tasks are ready at the same time, the one that
// appears first in the catalog is emitted first, so identical input always
// yields an identical order.
package dag
