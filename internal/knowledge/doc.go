// Package knowledge holds what portkiller knows about developer processes.
//
// A Fingerprint identifies a process by command plus optional port, project
// hash and container prefix. The Store maps fingerprint hash keys to
// KnowledgeEntry values and tracks not-yet-classified fingerprints as
// PendingEntry values until they have been seen often enough to be worth a
// remote classification (see Policy). Fallback provides a deterministic,
// offline classification used whenever the remote classifier cannot answer.
//
// The store is persisted as versioned JSON at ~/.portkiller-knowledge.json
// with mode 0600; a fresh file is seeded with a builtin catalog of common
// runtimes, databases and dev servers.
package knowledge
