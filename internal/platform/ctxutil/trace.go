package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries the request-scoped ids worth propagating through
// context: TraceID for the otel/observability correlation id, RunID for
// the execution run a given call is part of.
type TraceData struct {
	TraceID string
	RunID   string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}
