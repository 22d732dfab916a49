package observability

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	operationKey contextKey = "operation"
)

// Operation names carried in contexts and log entries.
const (
	OperationResolve       = "resolve"
	OperationResolveSingle = "resolve_single"
	OperationDiscover      = "discover"
	OperationListing       = "listing"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithOperation records the operation a context serves. An existing
// operation is kept, so the outermost caller names the work.
func WithOperation(ctx context.Context, operation string) context.Context {
	if OperationFromContext(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, operation)
}

// OperationFromContext returns the operation, or "" when none is set.
func OperationFromContext(ctx context.Context) string {
	return stringValue(ctx, operationKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
