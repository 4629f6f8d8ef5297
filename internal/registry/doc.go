// Package registry provides the central "glue" for compiled-in integrations.
//
// Every integration module registers its Definition under a unique name.
// During application startup the registry is populated and then validated,
// so mistakes in a definition (a step without a handler, a reference to an
// undeclared ingestion source) are reported before any step runs.
package registry
