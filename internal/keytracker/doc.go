// Package keytracker remembers every `_key` registered during a run so that
// duplicates are rejected before they reach a store.
//
// Keys live in two tiers. Recent keys sit in an in-memory map; once the map
// grows past Options.MemoryLimit the whole tier is written to a DiskTier in a
// single transaction and evicted. Lookups always consult memory first and then
// disk, so a key spilled long ago is still detected.
package keytracker
