// Package executor runs the steps of an integration in dependency order and
// produces the run summary.
//
// # Lifecycle
//
// Every step moves through
//
//	pending -> (disabled | running) -> (success | failure | partial_success_due_to_dependency_failure)
//
// A step becomes ready once all of its direct dependencies are terminal.
// Ready steps are pushed onto a channel consumed by a pool of workers, so
// unrelated branches of the graph run concurrently.
//
// # Propagation rules
//
//   - A step disabled by its start state never runs.
//   - A step with any disabled direct dependency is disabled too, with reason
//     "dependency". Its handler never runs.
//   - A step with a failed or degraded direct dependency still runs and ends
//     as partial_success_due_to_dependency_failure, or failure if its own
//     handler fails.
//
// Handler errors and panics are contained: they are logged with a generated
// error id and mark only that step as failed. JobState is flushed after every
// handler, whatever the outcome, and a flush error fails the step.
package executor
