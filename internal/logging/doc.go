// Package logging builds the slog loggers used by portkiller.
//
// It owns the console and JSON handlers, maps config to level and output
// destinations, and provides helpers that keep warning and decision records
// in a consistent shape (event_type, error_hint, impact). NewNop gives tests
// and optional wiring a logger that never fails.
package logging
