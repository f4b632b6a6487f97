package services

import "context"

type contextKey string

const (
	cameraKey    contextKey = "camera"
	iterationKey contextKey = "iteration"
	requestIDKey contextKey = "request_id"
)

// WithCamera annotates context with the camera name.
func WithCamera(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, cameraKey, name)
}

// CameraFromContext returns the camera name if present.
func CameraFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(cameraKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithIteration annotates context with the supervisor iteration counter.
func WithIteration(ctx context.Context, iteration int64) context.Context {
	return context.WithValue(ctx, iterationKey, iteration)
}

// IterationFromContext extracts the supervisor iteration counter if present.
func IterationFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(iterationKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
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
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
