package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/eurocoin-catalog/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})

	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NewError("coin_not_found", "coin\nmissing", http.StatusNotFound))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "coin_not_found" || body["message"] != "coin missing" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body["request_id"] != "req-1" || body["trace_id"] != "trace-1" {
		t.Fatalf("expected request and trace ids, got %+v", body)
	}
}

func TestWriteErrorDetailsDoNotOverrideEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewError("rate_limited", "slow down", http.StatusTooManyRequests).
		WithDetail("retry_after_seconds", 60).
		WithDetail("error", "ignored")
	WriteError(context.Background(), rec, err)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["retry_after_seconds"] != float64(60) {
		t.Fatalf("expected detail field, got %+v", body)
	}
	if body["error"] != "rate_limited" {
		t.Fatalf("expected envelope code to win, got %v", body["error"])
	}
	if _, ok := body["request_id"]; ok {
		t.Fatalf("expected request_id omitted without middleware")
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("x", "y", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}
