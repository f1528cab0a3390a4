package logging

import (
	"context"
	"log/slog"

	"archivist/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one workflow run (the tracker process id).
	FieldRunID = "run_id"
	// FieldTenantID carries the tenant owning the run.
	FieldTenantID = "tenant_id"
	// FieldStep is the workflow step name.
	FieldStep = "step"
	// FieldItem is the object name a work unit processes.
	FieldItem        = "item"
	FieldWorkerID    = "worker_id"
	FieldWorkerGroup = "worker_group"
	// FieldEventType classifies a log line for filtering (for example "worker_unreachable").
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if tenant, ok := services.TenantIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTenantID, tenant))
	}
	if step, ok := services.StepFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	if object, ok := services.ObjectFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItem, object))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
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
	return slog.New(logger.Handler().WithAttrs(fields))
}

type runLogKey struct{}

// WithRunLog returns a context whose loggers, obtained through FromContext,
// also write to h. Runners attach their per-run log file this way so that
// collaborators built with a shared logger still reach it.
func WithRunLog(ctx context.Context, h slog.Handler) context.Context {
	if h == nil {
		return ctx
	}
	return context.WithValue(ctx, runLogKey{}, h)
}

// FromContext returns base, teed into the run log carried by ctx if any.
// Attributes added to the result reach both outputs.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = NewNop()
	}
	if ctx == nil {
		return base
	}
	h, ok := ctx.Value(runLogKey{}).(slog.Handler)
	if !ok {
		return base
	}
	return TeeLogger(base, h)
}
