// Package fsgraph implements graphstore.Store on top of the local file
// system.
//
// # Layout
//
// Objects are buffered in memory, grouped by step and `_type`. When a
// collection's buffer reaches the threshold, or on an explicit Flush, every
// (step, `_type`) partition is written as one immutable chunk file and linked
// into a per-type index:
//
//	<root>/graph/<stepId>/entities/<chunkId>.json        {"entities": [...]}
//	<root>/graph/<stepId>/relationships/<chunkId>.json   {"relationships": [...]}
//	<root>/index/entities/<_type>/<chunkId>.json         -> relative symlink
//	<root>/index/relationships/<_type>/<chunkId>.json    -> relative symlink
//
// Chunk ids are version 7 UUIDs, so names never collide across steps and
// sort roughly by creation time.
//
// # Iteration
//
// IterateEntities first visits the objects still buffered for the type, then
// opens only the chunk files linked under index/entities/<_type>.
package fsgraph
