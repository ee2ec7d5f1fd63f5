package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType tags a record with a stable, greppable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the branch point recorded by DecisionAttrs.
	FieldDecisionType = "decision_type"
	// FieldHashKey is the fingerprint hash key of the process being handled.
	FieldHashKey = "hash_key"
	// FieldCommand is the process command name.
	FieldCommand = "command"
	// FieldSource records where an entry came from (builtin, apilearned, heuristic).
	FieldSource = "source"
	// FieldSessionID is the standardized structured logging key for run identifiers.
	FieldSessionID = "session_id"
)

type ctxKey int

const (
	hashKeyCtxKey ctxKey = iota
	commandCtxKey
)

// WithFingerprint stores the identity of the process being handled on ctx so
// downstream log lines can be tagged with it.
func WithFingerprint(ctx context.Context, hashKey, command string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, hashKeyCtxKey, hashKey)
	return context.WithValue(ctx, commandCtxKey, command)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	key, _ := ctx.Value(hashKeyCtxKey).(string)
	cmd, _ := ctx.Value(commandCtxKey).(string)
	return ProcessAttrs(key, cmd)
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
