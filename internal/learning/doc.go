// Package learning turns repeated sightings of unknown processes into
// knowledge entries.
//
// The Coordinator records each sighting in the knowledge store. Once a
// fingerprint has been seen often enough it is enriched and handed to the
// Worker, which asks the remote classifier (or falls back to the keyword
// heuristics) while keeping a minimum gap between calls. Results flow back to
// the Coordinator, which is the only goroutine that applies them to the store,
// journals them and persists the file.
package learning
