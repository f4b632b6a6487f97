package services_test

import (
	"context"
	"testing"

	"sxvrs/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithCamera(ctx, "porch")
	ctx = services.WithIteration(ctx, 7)
	ctx = services.WithRequestID(ctx, "req-123")

	if name, ok := services.CameraFromContext(ctx); !ok || name != "porch" {
		t.Fatalf("unexpected camera: %v %v", name, ok)
	}
	if it, ok := services.IterationFromContext(ctx); !ok || it != 7 {
		t.Fatalf("unexpected iteration: %v %v", it, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestCameraBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithCamera(ctx, "")
	if _, ok := services.CameraFromContext(ctx); ok {
		t.Fatal("expected no camera value")
	}
}
