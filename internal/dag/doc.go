// Package dag builds the step dependency graph of an integration and answers
// the ordering questions the execution engine asks of it.
//
// Edges point from a dependency to its dependent: for a step "b" with
// dependsOn ["a"] the graph holds the edge a -> b. Build rejects unknown
// dependencies, duplicate step ids and cycles before any step executes.
package dag
