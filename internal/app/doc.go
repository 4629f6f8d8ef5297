// Package app is the composition root: it turns CLI flags and HCL run
// configuration into a store, key trackers, metrics, an event stream and an
// upload sink, executes one registered integration, and writes the run's
// artifacts (summary.json, metrics.prom) into the working directory.
package app
