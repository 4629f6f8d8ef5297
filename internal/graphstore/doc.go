// Package graphstore defines the persistence contract for buffered entities
// and relationships, shared by every backend.
//
// # Backends
//
// Three implementations exist, selected at run start by configuration:
//
//   - memgraph: plain maps, nothing is spilled. Suited to tests and small runs.
//   - fsgraph: an in-memory buffer that is written out as immutable JSON chunk
//     files once a threshold is reached, with a per-`_type` symlink index used
//     for iteration.
//   - sqlgraph: an embedded SQLite database with batched transactional inserts
//     and a `_type` index.
//
// All of them are safe for concurrent use by steps running in parallel.
//
// # Ordering
//
// Objects added in one call are buffered in caller order. Iteration returns
// buffered objects first, then persisted ones. With IterateOptions.Concurrency
// greater than one the iteratee runs concurrently within a batch and no
// ordering is guaranteed.
package graphstore
