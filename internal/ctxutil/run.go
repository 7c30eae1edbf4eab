// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// RunKey is the context key for the pipeline run ID.
type RunKey struct{}

// WithRunID returns a context with the run ID embedded.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunKey{}, runID)
}

// RunIDFromContext returns the run ID from context, or empty string if not set.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(RunKey{}).(string); ok {
		return v
	}
	return ""
}
