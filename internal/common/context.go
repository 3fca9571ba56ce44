package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID contextKey = "run_id"
)

// WithRunID adds the extraction run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}
