package logging

import (
	"context"
	"log/slog"

	"sxvrs/internal/services"
)

const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldCamera names the camera a record belongs to.
	FieldCamera = "camera"
	// FieldIteration is the recording cycle counter of a camera supervisor.
	FieldIteration = "iteration"
	// FieldEventType is a stable machine-readable identifier for the event.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID carries request identifiers from the control plane.
	FieldCorrelationID = "correlation_id"
	// FieldSessionID identifies one daemon run.
	FieldSessionID = "session_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if camera, ok := services.CameraFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCamera, camera))
	}
	if iteration, ok := services.IterationFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldIteration, iteration))
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
	return logger.With(Args(fields...)...)
}
