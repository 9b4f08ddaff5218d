package core

import "context"

type (
	runIDKey struct{}
	stepKey  struct{}
)

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id if present.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok
}

// WithStepIndex attaches the index of the step being produced.
func WithStepIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, stepKey{}, index)
}

// StepIndex returns the index of the step being produced, if any.
func StepIndex(ctx context.Context) (int, bool) {
	index, ok := ctx.Value(stepKey{}).(int)
	return index, ok
}
