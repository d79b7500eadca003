package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNop(t *testing.T) {
	ctx := context.Background()
	if HasLogger(ctx) {
		t.Fatalf("expected no logger on bare context")
	}
	if Logger(ctx) == nil {
		t.Fatalf("expected no-op logger")
	}

	logger := zap.NewExample()
	ctx = WithLogger(ctx, logger)
	if !HasLogger(ctx) || Logger(ctx) != logger {
		t.Fatalf("expected stored logger")
	}
}

func TestTraceLogResource(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", ProjectID: "catalog-prod"})
	info, ok := Trace(ctx)
	if !ok {
		t.Fatalf("expected trace info")
	}
	if got := info.LogResource(); got != "projects/catalog-prod/traces/abc" {
		t.Fatalf("unexpected log resource %q", got)
	}
	if TraceID(ctx) != "abc" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}
	if (TraceInfo{TraceID: "abc"}).LogResource() != "" {
		t.Fatalf("expected empty resource without project")
	}
}

func TestAnnotateCollectsFields(t *testing.T) {
	Annotate(context.Background(), zap.String("ignored", "x"))

	ctx, holder := WithAnnotations(context.Background())
	Annotate(ctx, zap.String("admin_key", "k1"))
	Annotate(ctx, zap.String("batch_id", "b1"), zap.Int("inserted", 3))

	fields := holder.Fields()
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields[0].Key != "admin_key" || fields[1].Key != "batch_id" || fields[2].Key != "inserted" {
		t.Fatalf("unexpected field order %+v", fields)
	}
}
