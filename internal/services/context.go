package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	tenantIDKey  contextKey = "tenant_id"
	stepKey      contextKey = "step"
	objectKey    contextKey = "object"
	requestIDKey contextKey = "request_id"
)

// WithSession binds the pipeline run and tenant identity to ctx. Every call a
// remote work unit makes on behalf of its item carries this identity.
func WithSession(ctx context.Context, runID, tenantID string) context.Context {
	if runID != "" {
		ctx = context.WithValue(ctx, runIDKey, runID)
	}
	if tenantID != "" {
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	}
	return ctx
}

// RunIDFromContext returns the pipeline run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, runIDKey)
}

// TenantIDFromContext returns the tenant identifier if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, tenantIDKey)
}

// WithStep annotates context with the workflow step name.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stepKey)
}

// WithObject annotates context with the work item being processed.
func WithObject(ctx context.Context, object string) context.Context {
	if object == "" {
		return ctx
	}
	return context.WithValue(ctx, objectKey, object)
}

// ObjectFromContext returns the work item name if present.
func ObjectFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, objectKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
